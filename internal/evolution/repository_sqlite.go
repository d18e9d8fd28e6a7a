package evolution

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLiteRepository implements Repository on the solo-mode SQLite store.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an already migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, c *Cycle) (bool, error) {
	contributors, err := marshalContributors(c.TopContributors)
	if err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO evolution_cycles (id, state, top_contributors, trained_artifact_id, failure_reason, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		c.ID, string(c.State), string(contributors), nullString(c.TrainedArtifactID), c.FailureReason,
		c.CreatedAt.UnixNano(), c.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("inserting cycle: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting cycle: %w", err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Cycle, error) {
	var (
		c                Cycle
		state            string
		contributors     string
		artifact         sql.NullString
		created, updated int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, state, top_contributors, trained_artifact_id, failure_reason, created_at, updated_at
		 FROM evolution_cycles WHERE id = ?`,
		id,
	).Scan(&c.ID, &state, &contributors, &artifact, &c.FailureReason, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCycleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying cycle: %w", err)
	}

	c.State = State(state)
	c.TrainedArtifactID = artifact.String
	c.CreatedAt = time.Unix(0, created).UTC()
	c.UpdatedAt = time.Unix(0, updated).UTC()
	if err := json.Unmarshal([]byte(contributors), &c.TopContributors); err != nil {
		return nil, fmt.Errorf("decoding contributors for %s: %w", id, err)
	}
	return &c, nil
}

func (r *SQLiteRepository) Transition(ctx context.Context, c *Cycle, from State) error {
	contributors, err := marshalContributors(c.TopContributors)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE evolution_cycles
		 SET state = ?, top_contributors = ?, trained_artifact_id = ?, failure_reason = ?, updated_at = ?
		 WHERE id = ? AND state = ?`,
		string(c.State), string(contributors), nullString(c.TrainedArtifactID), c.FailureReason,
		c.UpdatedAt.UnixNano(), c.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("updating cycle: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating cycle: %w", err)
	}
	if n == 0 {
		return ErrStaleState
	}
	return nil
}
