package evolution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/obelisk-core/obelisk/internal/failure"
	"github.com/obelisk-core/obelisk/internal/memory"
	"github.com/obelisk-core/obelisk/internal/metrics"
	inats "github.com/obelisk-core/obelisk/internal/nats"
)

const lockPrefix = "evolution:lock:"

// InteractionSource lists the interactions attached to a cycle.
type InteractionSource interface {
	InteractionsByCycle(ctx context.Context, cycleID string) ([]memory.Interaction, error)
}

// EventPublisher announces cycle transitions.
type EventPublisher interface {
	PublishCycleEvent(ctx context.Context, event inats.CycleEvent) error
}

// Options tunes the cycle state machine.
type Options struct {
	LockTTL time.Duration
}

// Service drives cycles through open, scoring, training and a terminal
// state. Evolve on one cycle id runs at most once at a time.
type Service struct {
	repo         Repository
	interactions InteractionSource
	scorer       Scorer
	trainer      Trainer
	locker       Locker
	events       EventPublisher
	opts         Options
	now          func() time.Time
}

// NewService creates a new evolution service. events may be nil.
func NewService(repo Repository, interactions InteractionSource, scorer Scorer, trainer Trainer, locker Locker, events EventPublisher, opts Options) *Service {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Minute
	}
	return &Service{
		repo:         repo,
		interactions: interactions,
		scorer:       scorer,
		trainer:      trainer,
		locker:       locker,
		events:       events,
		opts:         opts,
		now:          time.Now,
	}
}

// Start opens a cycle. Starting an already Open cycle returns it unchanged.
func (s *Service) Start(ctx context.Context, cycleID string) (*Cycle, error) {
	const op = "evolution.Start"

	cycleID = strings.TrimSpace(cycleID)
	if cycleID == "" {
		return nil, failure.New(failure.KindValidation, op, "cycle id is required")
	}

	now := s.now().UTC()
	c := &Cycle{ID: cycleID, State: StateOpen, TopContributors: []Contributor{}, CreatedAt: now, UpdatedAt: now}
	created, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, failure.Wrapf(failure.KindPersistence, op, err, "creating cycle %s", cycleID)
	}
	if created {
		metrics.EvolutionTransitionsTotal.WithLabelValues(string(StateOpen)).Inc()
		s.publish(ctx, c, "")
		slog.Info("evolution cycle opened", "cycle_id", cycleID)
		return c, nil
	}

	existing, err := s.Status(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if existing.State != StateOpen {
		return nil, failure.New(failure.KindConflict, op,
			fmt.Sprintf("cycle %s already exists in state %s", cycleID, existing.State))
	}
	return existing, nil
}

// Status returns the current cycle record.
func (s *Service) Status(ctx context.Context, cycleID string) (*Cycle, error) {
	const op = "evolution.Status"

	c, err := s.repo.Get(ctx, cycleID)
	if errors.Is(err, ErrCycleNotFound) {
		return nil, failure.New(failure.KindNotFound, op, fmt.Sprintf("cycle %s not found", cycleID))
	}
	if err != nil {
		return nil, failure.Wrapf(failure.KindPersistence, op, err, "reading cycle %s", cycleID)
	}
	return c, nil
}

// Evolve scores the cycle's contributors and, when fineTune is set, trains
// on their interactions. Only Open cycles can evolve. Once the cycle leaves
// Open the run is detached from ctx cancellation so it always reaches a
// terminal state.
func (s *Service) Evolve(ctx context.Context, cycleID string, fineTune bool) (*Result, error) {
	const op = "evolution.Evolve"

	cycleID = strings.TrimSpace(cycleID)
	if cycleID == "" {
		return nil, failure.New(failure.KindValidation, op, "cycle id is required")
	}

	unlock, ok, err := s.locker.TryLock(ctx, lockPrefix+cycleID, s.opts.LockTTL)
	if err != nil {
		return nil, failure.Wrapf(failure.KindPersistence, op, err, "locking cycle %s", cycleID)
	}
	if !ok {
		return nil, failure.New(failure.KindConflict, op, fmt.Sprintf("cycle %s is already evolving", cycleID))
	}
	ctx = context.WithoutCancel(ctx)
	defer func() {
		if err := unlock(ctx); err != nil {
			slog.Warn("evolution: releasing lock", "error", err, "cycle_id", cycleID)
		}
	}()

	c, err := s.Status(ctx, cycleID)
	if failure.Is(err, failure.KindNotFound) {
		return nil, failure.Wrapf(failure.KindCycle, op, err, "cycle %s does not exist", cycleID)
	}
	if err != nil {
		return nil, err
	}
	if c.State != StateOpen {
		return nil, failure.New(failure.KindConflict, op,
			fmt.Sprintf("cycle %s is %s; only open cycles can evolve", cycleID, c.State))
	}

	if err := s.transition(ctx, c, StateScoring); err != nil {
		return nil, s.persistError(op, c, err)
	}

	interactions, err := s.interactions.InteractionsByCycle(ctx, cycleID)
	if err != nil {
		return nil, s.fail(ctx, op, c, "reading interactions", err)
	}
	c.TopContributors = s.scorer.Score(interactions, s.now().UTC())

	if !fineTune {
		if err := s.transition(ctx, c, StateCompleted); err != nil {
			return nil, s.persistError(op, c, err)
		}
		return resultOf(c), nil
	}

	if len(interactions) == 0 {
		return nil, s.fail(ctx, op, c, "no interactions to train on", nil)
	}
	if err := s.transition(ctx, c, StateTraining); err != nil {
		return nil, s.persistError(op, c, err)
	}

	artifact, err := s.trainer.FineTune(ctx, NewTrainingRequest(cycleID, c.TopContributors, interactions))
	if err != nil {
		return nil, s.fail(ctx, op, c, "training failed", err)
	}
	c.TrainedArtifactID = artifact

	if err := s.transition(ctx, c, StateCompleted); err != nil {
		return nil, s.persistError(op, c, err)
	}
	return resultOf(c), nil
}

func (s *Service) transition(ctx context.Context, c *Cycle, to State) error {
	from := c.State
	if from.Terminal() {
		return ErrStaleState
	}
	c.State = to
	c.UpdatedAt = s.now().UTC()
	if err := s.repo.Transition(ctx, c, from); err != nil {
		c.State = from
		return err
	}

	metrics.EvolutionTransitionsTotal.WithLabelValues(string(to)).Inc()
	s.publish(ctx, c, from)
	slog.Info("evolution cycle transition", "cycle_id", c.ID, "from", from, "to", to)
	return nil
}

// fail moves the cycle to Failed and returns the cycle error for the caller.
func (s *Service) fail(ctx context.Context, op string, c *Cycle, reason string, cause error) error {
	if cause != nil {
		reason = reason + ": " + cause.Error()
	}
	c.FailureReason = reason
	if err := s.transition(ctx, c, StateFailed); err != nil {
		slog.Error("evolution: recording failure", "error", err, "cycle_id", c.ID, "reason", reason)
	}
	msg := fmt.Sprintf("cycle %s failed: %s", c.ID, reason)
	if cause == nil {
		return failure.New(failure.KindCycle, op, msg)
	}
	return failure.Wrapf(failure.KindCycle, op, cause, "%s", msg)
}

func (s *Service) persistError(op string, c *Cycle, err error) error {
	if errors.Is(err, ErrStaleState) {
		return failure.New(failure.KindConflict, op, fmt.Sprintf("cycle %s changed state concurrently", c.ID))
	}
	return failure.Wrapf(failure.KindPersistence, op, err, "updating cycle %s", c.ID)
}

func (s *Service) publish(ctx context.Context, c *Cycle, from State) {
	if s.events == nil {
		return
	}
	ev := inats.CycleEvent{
		CycleID:       c.ID,
		From:          string(from),
		To:            string(c.State),
		ArtifactID:    c.TrainedArtifactID,
		FailureReason: c.FailureReason,
		Timestamp:     c.UpdatedAt,
	}
	if err := s.events.PublishCycleEvent(ctx, ev); err != nil {
		slog.Warn("evolution: publishing cycle event", "error", err, "cycle_id", c.ID)
	}
}

func resultOf(c *Cycle) *Result {
	contributors := c.TopContributors
	if contributors == nil {
		contributors = []Contributor{}
	}
	return &Result{
		CycleID:         c.ID,
		Status:          c.State,
		ArtifactID:      c.TrainedArtifactID,
		TopContributors: contributors,
	}
}
