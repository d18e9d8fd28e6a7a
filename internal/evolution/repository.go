package evolution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists cycles. Transition is a compare-and-set on state: it
// fails with ErrStaleState if the stored cycle is no longer in from.
type Repository interface {
	Create(ctx context.Context, c *Cycle) (bool, error)
	Get(ctx context.Context, id string) (*Cycle, error)
	Transition(ctx context.Context, c *Cycle, from State) error
}

// PostgresRepository implements Repository using pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new cycle repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create inserts c and reports whether it was new.
func (r *PostgresRepository) Create(ctx context.Context, c *Cycle) (bool, error) {
	contributors, err := marshalContributors(c.TopContributors)
	if err != nil {
		return false, err
	}
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO evolution_cycles (id, state, top_contributors, trained_artifact_id, failure_reason, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		c.ID, string(c.State), contributors, nullString(c.TrainedArtifactID), c.FailureReason, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("inserting cycle: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Cycle, error) {
	var (
		c            Cycle
		state        string
		contributors []byte
		artifact     *string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, state, top_contributors, trained_artifact_id, failure_reason, created_at, updated_at
		 FROM evolution_cycles WHERE id = $1`,
		id,
	).Scan(&c.ID, &state, &contributors, &artifact, &c.FailureReason, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCycleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying cycle: %w", err)
	}

	c.State = State(state)
	if artifact != nil {
		c.TrainedArtifactID = *artifact
	}
	if err := json.Unmarshal(contributors, &c.TopContributors); err != nil {
		return nil, fmt.Errorf("decoding contributors for %s: %w", id, err)
	}
	return &c, nil
}

func (r *PostgresRepository) Transition(ctx context.Context, c *Cycle, from State) error {
	contributors, err := marshalContributors(c.TopContributors)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE evolution_cycles
		 SET state = $1, top_contributors = $2, trained_artifact_id = $3, failure_reason = $4, updated_at = $5
		 WHERE id = $6 AND state = $7`,
		string(c.State), contributors, nullString(c.TrainedArtifactID), c.FailureReason, c.UpdatedAt, c.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("updating cycle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleState
	}
	return nil
}

func marshalContributors(cs []Contributor) ([]byte, error) {
	if cs == nil {
		cs = []Contributor{}
	}
	data, err := json.Marshal(cs)
	if err != nil {
		return nil, fmt.Errorf("marshaling contributors: %w", err)
	}
	return data, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
