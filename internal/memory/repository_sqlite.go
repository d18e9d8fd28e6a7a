package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// SQLiteRepository implements Repository on the solo-mode SQLite store.
// Embeddings are stored as JSON arrays and compared in process.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an already migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// SaveInteraction writes the interaction and its memory record in one
// transaction. The interaction insert runs first, so the cycle lookup inside
// it happens under SQLite's write lock and cannot interleave with a cycle
// transition.
func (r *SQLiteRepository) SaveInteraction(ctx context.Context, it *Interaction, rec *Record) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`INSERT INTO interactions (id, user_id, query, response, cycle_id, energy, quantum_seed, reward_score, created_at)
		 VALUES (?, ?, ?, ?,
		         (SELECT CASE WHEN COUNT(*) = 1 THEN MIN(id) END
		          FROM evolution_cycles
		          WHERE state = 'open' AND (? = '' OR id = ?)),
		         ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		it.ID.String(), it.UserID, it.Query, it.Response, it.CycleID, it.CycleID,
		it.Energy, it.QuantumSeed, it.RewardScore, it.CreatedAt.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("inserting interaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting interaction: %w", err)
	}
	inserted := n == 1

	var cycleID sql.NullString
	if inserted {
		err := tx.QueryRowContext(ctx, `SELECT cycle_id FROM interactions WHERE id = ?`, it.ID.String()).Scan(&cycleID)
		if err != nil {
			return false, fmt.Errorf("reading interaction cycle: %w", err)
		}
	}

	if rec != nil {
		var emb *string
		if len(rec.Embedding) > 0 {
			data, err := json.Marshal(rec.Embedding)
			if err != nil {
				return false, fmt.Errorf("marshaling embedding: %w", err)
			}
			s := string(data)
			emb = &s
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO memories (id, user_id, content, embedding, created_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO NOTHING`,
			rec.ID.String(), rec.UserID, rec.Content, emb, rec.CreatedAt.UnixNano(),
		)
		if err != nil {
			return false, fmt.Errorf("inserting memory: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing interaction: %w", err)
	}
	if inserted {
		it.CycleID = cycleID.String
	}
	return inserted, nil
}

func (r *SQLiteRepository) ListMemories(ctx context.Context, userID string, limit int) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, content, embedding, created_at
		 FROM memories
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}
	return scanRecords(rows)
}

func (r *SQLiteRepository) SearchSimilar(ctx context.Context, userID string, embedding []float32, limit int) ([]ScoredRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, content, embedding, created_at
		 FROM memories
		 WHERE user_id = ? AND embedding IS NOT NULL`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("searching similar memories: %w", err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}

	results := make([]ScoredRecord, 0, len(records))
	for _, rec := range records {
		if len(rec.Embedding) != len(embedding) {
			continue
		}
		results = append(results, ScoredRecord{Record: rec, Similarity: cosine(embedding, rec.Embedding)})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (r *SQLiteRepository) RecentInteractions(ctx context.Context, userID string, limit int) ([]Interaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, query, response, cycle_id, energy, quantum_seed, reward_score, created_at
		 FROM interactions
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying interactions: %w", err)
	}
	return scanInteractions(rows)
}

func (r *SQLiteRepository) InteractionsByCycle(ctx context.Context, cycleID string) ([]Interaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, query, response, cycle_id, energy, quantum_seed, reward_score, created_at
		 FROM interactions
		 WHERE cycle_id = ?
		 ORDER BY created_at, id`,
		cycleID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying interactions: %w", err)
	}
	return scanInteractions(rows)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			m       Record
			id      string
			emb     sql.NullString
			created int64
		)
		if err := rows.Scan(&id, &m.UserID, &m.Content, &emb, &created); err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parsing memory id %q: %w", id, err)
		}
		m.ID = parsed
		m.CreatedAt = time.Unix(0, created).UTC()
		if emb.Valid && emb.String != "" {
			if err := json.Unmarshal([]byte(emb.String), &m.Embedding); err != nil {
				return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
			}
		}
		records = append(records, m)
	}
	return records, rows.Err()
}

func scanInteractions(rows *sql.Rows) ([]Interaction, error) {
	defer rows.Close()

	interactions := []Interaction{}
	for rows.Next() {
		var (
			it      Interaction
			id      string
			cycleID sql.NullString
			created int64
		)
		if err := rows.Scan(&id, &it.UserID, &it.Query, &it.Response, &cycleID,
			&it.Energy, &it.QuantumSeed, &it.RewardScore, &created); err != nil {
			return nil, fmt.Errorf("scanning interaction: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parsing interaction id %q: %w", id, err)
		}
		it.ID = parsed
		it.CycleID = cycleID.String
		it.CreatedAt = time.Unix(0, created).UTC()
		interactions = append(interactions, it)
	}
	return interactions, rows.Err()
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
