package evolution

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/obelisk-core/obelisk/internal/memory"
)

// Trainer fine-tunes on a cycle's interactions and returns an artifact id.
type Trainer interface {
	FineTune(ctx context.Context, req TrainingRequest) (string, error)
}

// TrainingRequest carries the scored cycle to a Trainer.
type TrainingRequest struct {
	CycleID      string        `json:"cycle_id"`
	Contributors []Contributor `json:"contributors"`
	Examples     []Example     `json:"examples"`
}

// Example is one weighted prompt/completion pair.
type Example struct {
	UserID     string  `json:"user_id"`
	Prompt     string  `json:"prompt"`
	Completion string  `json:"completion"`
	Weight     float64 `json:"weight"`
}

// NewTrainingRequest keeps the interactions of ranked contributors, weighted
// by each contributor's share of the top score.
func NewTrainingRequest(cycleID string, contributors []Contributor, interactions []memory.Interaction) TrainingRequest {
	weights := make(map[string]float64, len(contributors))
	var top float64
	if len(contributors) > 0 {
		top = contributors[0].Score
	}
	for _, c := range contributors {
		w := 1.0
		if top > 0 {
			w = c.Score / top
		}
		weights[c.UserID] = w
	}

	req := TrainingRequest{CycleID: cycleID, Contributors: contributors, Examples: []Example{}}
	for _, it := range interactions {
		w, ok := weights[it.UserID]
		if !ok {
			continue
		}
		req.Examples = append(req.Examples, Example{
			UserID:     it.UserID,
			Prompt:     it.Query,
			Completion: it.Response,
			Weight:     w,
		})
	}
	return req
}

// DatasetTrainer writes the training set as JSONL for an offline job. The
// artifact id names the written dataset.
type DatasetTrainer struct {
	dir string
}

// NewDatasetTrainer creates a trainer that writes under dir.
func NewDatasetTrainer(dir string) *DatasetTrainer {
	return &DatasetTrainer{dir: dir}
}

func (t *DatasetTrainer) FineTune(ctx context.Context, req TrainingRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating dataset dir: %w", err)
	}

	artifact := fmt.Sprintf("dataset-%s-%s", req.CycleID, uuid.NewString())
	path := filepath.Join(t.dir, artifact+".jsonl")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating dataset: %w", err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, ex := range req.Examples {
		if err := enc.Encode(ex); err != nil {
			f.Close()
			return "", fmt.Errorf("writing example: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return "", fmt.Errorf("flushing dataset: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing dataset: %w", err)
	}

	slog.Info("training dataset written", "cycle_id", req.CycleID, "path", path, "examples", len(req.Examples))
	return artifact, nil
}
