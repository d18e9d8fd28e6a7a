package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// Repository defines interaction and memory persistence operations.
// All writes are idempotent by id.
//
// SaveInteraction resolves the interaction's cycle in the same transaction
// as the insert: an empty CycleID attaches to the Open cycle when exactly one
// exists, a given CycleID is kept only while that cycle is Open, and anything
// else is stored without a cycle. It reports whether the interaction row was
// new and, if so, sets it.CycleID to the stored value.
type Repository interface {
	SaveInteraction(ctx context.Context, it *Interaction, rec *Record) (bool, error)
	ListMemories(ctx context.Context, userID string, limit int) ([]Record, error)
	SearchSimilar(ctx context.Context, userID string, embedding []float32, limit int) ([]ScoredRecord, error)
	RecentInteractions(ctx context.Context, userID string, limit int) ([]Interaction, error)
	InteractionsByCycle(ctx context.Context, cycleID string) ([]Interaction, error)
}

// PostgresRepository implements Repository using pgx + pgvector.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new memory repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// SaveInteraction writes the interaction and, when rec is non-nil, its
// memory record in one transaction. Rows that already exist are left as is.
// The Open cycle row is share-locked until commit, so a concurrent
// transition out of Open either waits for this insert or is seen by it.
func (r *PostgresRepository) SaveInteraction(ctx context.Context, it *Interaction, rec *Record) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	cycleID, err := lockOpenCycle(ctx, tx, it.CycleID)
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO interactions (id, user_id, query, response, cycle_id, energy, quantum_seed, reward_score, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		it.ID, it.UserID, it.Query, it.Response, nullString(cycleID),
		it.Energy, it.QuantumSeed, it.RewardScore, it.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("inserting interaction: %w", err)
	}
	inserted := tag.RowsAffected() == 1

	if rec != nil {
		var vec any
		if len(rec.Embedding) > 0 {
			vec = pgvector.NewVector(rec.Embedding)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO memories (id, user_id, content, embedding, created_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO NOTHING`,
			rec.ID, rec.UserID, rec.Content, vec, rec.CreatedAt,
		)
		if err != nil {
			return false, fmt.Errorf("inserting memory: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing interaction: %w", err)
	}
	if inserted {
		it.CycleID = cycleID
	}
	return inserted, nil
}

// lockOpenCycle share-locks the Open cycles matching requested (all of them
// when requested is empty) and returns the one to attach to, or "".
func lockOpenCycle(ctx context.Context, tx pgx.Tx, requested string) (string, error) {
	rows, err := tx.Query(ctx,
		`SELECT id FROM evolution_cycles
		 WHERE state = 'open' AND ($1::text = '' OR id = $1::text)
		 ORDER BY id
		 FOR SHARE`,
		requested,
	)
	if err != nil {
		return "", fmt.Errorf("locking open cycle: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("scanning open cycles: %w", err)
	}
	if len(ids) != 1 {
		return "", nil
	}
	return ids[0], nil
}

// ListMemories returns the user's newest memory records first.
func (r *PostgresRepository) ListMemories(ctx context.Context, userID string, limit int) ([]Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, content, created_at
		 FROM memories
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var m Record
		if err := rows.Scan(&m.ID, &m.UserID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}
		records = append(records, m)
	}
	return records, rows.Err()
}

func (r *PostgresRepository) SearchSimilar(ctx context.Context, userID string, embedding []float32, limit int) ([]ScoredRecord, error) {
	vec := pgvector.NewVector(embedding)
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, content, created_at,
		        1 - (embedding <=> $1) AS similarity
		 FROM memories
		 WHERE user_id = $2
		   AND embedding IS NOT NULL
		   AND vector_dims(embedding) = vector_dims($1)
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		vec, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching similar memories: %w", err)
	}
	defer rows.Close()

	var results []ScoredRecord
	for rows.Next() {
		var m Record
		var similarity float64
		if err := rows.Scan(&m.ID, &m.UserID, &m.Content, &m.CreatedAt, &similarity); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		results = append(results, ScoredRecord{Record: m, Similarity: similarity})
	}
	return results, rows.Err()
}

// RecentInteractions returns the user's newest interactions first.
func (r *PostgresRepository) RecentInteractions(ctx context.Context, userID string, limit int) ([]Interaction, error) {
	return r.queryInteractions(ctx,
		`SELECT id, user_id, query, response, cycle_id, energy, quantum_seed, reward_score, created_at
		 FROM interactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2`,
		userID, limit,
	)
}

// InteractionsByCycle returns every interaction attached to the cycle, oldest first.
func (r *PostgresRepository) InteractionsByCycle(ctx context.Context, cycleID string) ([]Interaction, error) {
	return r.queryInteractions(ctx,
		`SELECT id, user_id, query, response, cycle_id, energy, quantum_seed, reward_score, created_at
		 FROM interactions
		 WHERE cycle_id = $1
		 ORDER BY created_at, id`,
		cycleID,
	)
}

func (r *PostgresRepository) queryInteractions(ctx context.Context, query string, args ...any) ([]Interaction, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying interactions: %w", err)
	}
	defer rows.Close()

	interactions := []Interaction{}
	for rows.Next() {
		var it Interaction
		var cycleID *string
		if err := rows.Scan(&it.ID, &it.UserID, &it.Query, &it.Response, &cycleID,
			&it.Energy, &it.QuantumSeed, &it.RewardScore, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning interaction: %w", err)
		}
		if cycleID != nil {
			it.CycleID = *cycleID
		}
		interactions = append(interactions, it)
	}
	return interactions, rows.Err()
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
