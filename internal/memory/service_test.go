package memory

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obelisk-core/obelisk/internal/config"
	"github.com/obelisk-core/obelisk/internal/database"
	"github.com/obelisk-core/obelisk/internal/failure"
)

func newTestRepo(t *testing.T) (*SQLiteRepository, *sql.DB) {
	t.Helper()
	db, err := database.NewSQLite(context.Background(), config.SQLiteConfig{
		Path: filepath.Join(t.TempDir(), "memory.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteRepository(db), db
}

func openCycle(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	insertCycle(t, db, id, "open")
}

func insertCycle(t *testing.T, db *sql.DB, id, state string) {
	t.Helper()
	now := time.Now().UnixNano()
	_, err := db.Exec(`INSERT INTO evolution_cycles (id, state, created_at, updated_at) VALUES (?, ?, ?, ?)`, id, state, now, now)
	require.NoError(t, err)
}

type keywordEmbedder struct{ err error }

func (e keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "qubit") || strings.Contains(lower, "quantum") {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

type failingSaveRepo struct {
	Repository
	err error
}

func (r failingSaveRepo) SaveInteraction(context.Context, *Interaction, *Record) (bool, error) {
	return false, r.err
}

type recordingRetry struct {
	its  []Interaction
	recs []Record
	err  error
}

func (q *recordingRetry) Enqueue(_ context.Context, it Interaction, rec Record, _ string) error {
	q.its = append(q.its, it)
	q.recs = append(q.recs, rec)
	return q.err
}

func TestBuildContext_EmptyStore(t *testing.T) {
	repo, _ := newTestRepo(t)
	svc := NewService(repo, nil, nil, nil, DefaultOptions())

	cc, err := svc.BuildContext(context.Background(), "alice", "hello")
	require.NoError(t, err)
	assert.NotNil(t, cc.Messages)
	assert.Empty(t, cc.Messages)
	assert.Equal(t, "", cc.MemorySummary)
}

func TestBuildContext_AnonymousUser(t *testing.T) {
	repo, _ := newTestRepo(t)
	svc := NewService(repo, nil, nil, nil, DefaultOptions())

	cc, err := svc.BuildContext(context.Background(), "", "hello")
	require.NoError(t, err)
	assert.Equal(t, Empty(), cc)
}

func TestBuildContext_BoundsAndOrdering(t *testing.T) {
	repo, _ := newTestRepo(t)
	svc := NewService(repo, nil, nil, nil, Options{MaxMessages: 4, MaxMemories: 2})
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, q := range []string{"first", "second", "third"} {
		it := &Interaction{UserID: "alice", Query: q, Response: "ok " + q, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, svc.RecordInteraction(ctx, it))
	}

	cc, err := svc.BuildContext(ctx, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, []Message{
		{Role: RoleUser, Content: "second"},
		{Role: RoleAssistant, Content: "ok second"},
		{Role: RoleUser, Content: "third"},
		{Role: RoleAssistant, Content: "ok third"},
	}, cc.Messages)
	assert.Equal(t,
		"- User: third\nAssistant: ok third\n- User: second\nAssistant: ok second",
		cc.MemorySummary)
}

func TestBuildContext_RelevancePicksMatchingMemory(t *testing.T) {
	repo, _ := newTestRepo(t)
	svc := NewService(repo, nil, nil, nil, Options{MaxMemories: 1})
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, svc.RecordInteraction(ctx, &Interaction{UserID: "alice", Query: "tell me about pyramids", Response: "old stones", CreatedAt: base}))
	require.NoError(t, svc.RecordInteraction(ctx, &Interaction{UserID: "alice", Query: "weather", Response: "sunny", CreatedAt: base.Add(time.Hour)}))

	cc, err := svc.BuildContext(ctx, "alice", "pyramids")
	require.NoError(t, err)
	assert.Equal(t, "- User: tell me about pyramids\nAssistant: old stones", cc.MemorySummary)
}

func TestBuildContext_SemanticSimilarity(t *testing.T) {
	repo, _ := newTestRepo(t)
	svc := NewService(repo, nil, keywordEmbedder{}, nil, Options{MaxMemories: 1})
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, svc.RecordInteraction(ctx, &Interaction{UserID: "alice", Query: "how many qubits", Response: "two", CreatedAt: base}))
	require.NoError(t, svc.RecordInteraction(ctx, &Interaction{UserID: "alice", Query: "lunch", Response: "soup", CreatedAt: base.Add(time.Hour)}))

	cc, err := svc.BuildContext(ctx, "alice", "quantum randomness")
	require.NoError(t, err)
	assert.Equal(t, "- User: how many qubits\nAssistant: two", cc.MemorySummary)
}

func TestBuildContext_EmbedderFailureFallsBackToLexical(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	writer := NewService(repo, nil, nil, nil, DefaultOptions())
	require.NoError(t, writer.RecordInteraction(ctx, &Interaction{UserID: "alice", Query: "q", Response: "r"}))

	svc := NewService(repo, nil, keywordEmbedder{err: errors.New("quota")}, nil, DefaultOptions())
	cc, err := svc.BuildContext(ctx, "alice", "anything")
	require.NoError(t, err)
	assert.Equal(t, "- User: q\nAssistant: r", cc.MemorySummary)
}

func TestRecordInteraction_AssignsIDAndTimestamp(t *testing.T) {
	repo, _ := newTestRepo(t)
	svc := NewService(repo, nil, nil, nil, DefaultOptions())
	ctx := context.Background()

	it := &Interaction{UserID: "alice", Query: "q", Response: "r"}
	require.NoError(t, svc.RecordInteraction(ctx, it))
	assert.NotEqual(t, uuid.Nil, it.ID)
	assert.False(t, it.CreatedAt.IsZero())

	got, err := repo.RecentInteractions(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, it.ID, got[0].ID)
	assert.Equal(t, 0.0, got[0].Energy)
	assert.Equal(t, 0.0, got[0].RewardScore)
}

func TestRecordInteraction_Idempotent(t *testing.T) {
	repo, _ := newTestRepo(t)
	svc := NewService(repo, nil, nil, nil, DefaultOptions())
	ctx := context.Background()

	it := &Interaction{ID: uuid.New(), UserID: "alice", Query: "q", Response: "r"}
	require.NoError(t, svc.RecordInteraction(ctx, it))
	require.NoError(t, svc.RecordInteraction(ctx, it))

	got, err := repo.RecentInteractions(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	mems, err := repo.ListMemories(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Len(t, mems, 1)
}

func TestRecordInteraction_RequiresUser(t *testing.T) {
	repo, _ := newTestRepo(t)
	svc := NewService(repo, nil, nil, nil, DefaultOptions())

	err := svc.RecordInteraction(context.Background(), &Interaction{Query: "q", Response: "r"})
	assert.True(t, failure.Is(err, failure.KindValidation))
}

func TestRecordInteraction_AttachesSingleOpenCycle(t *testing.T) {
	repo, db := newTestRepo(t)
	svc := NewService(repo, nil, nil, nil, DefaultOptions())
	ctx := context.Background()

	it := &Interaction{UserID: "alice", Query: "q", Response: "r"}
	require.NoError(t, svc.RecordInteraction(ctx, it))
	assert.Empty(t, it.CycleID)

	openCycle(t, db, "c1")
	it = &Interaction{UserID: "alice", Query: "q2", Response: "r2"}
	require.NoError(t, svc.RecordInteraction(ctx, it))
	assert.Equal(t, "c1", it.CycleID)

	byCycle, err := svc.InteractionsByCycle(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, byCycle, 1)
	assert.Equal(t, it.ID, byCycle[0].ID)

	openCycle(t, db, "c2")
	it = &Interaction{UserID: "alice", Query: "q3", Response: "r3"}
	require.NoError(t, svc.RecordInteraction(ctx, it))
	assert.Empty(t, it.CycleID, "ambiguous open cycles leave the interaction unattached")
}

func TestRecordInteraction_KeepsGivenCycleOnlyWhileOpen(t *testing.T) {
	repo, db := newTestRepo(t)
	svc := NewService(repo, nil, nil, nil, DefaultOptions())
	ctx := context.Background()
	openCycle(t, db, "live")
	insertCycle(t, db, "done", "completed")

	kept := &Interaction{UserID: "alice", Query: "q", Response: "r", CycleID: "live"}
	require.NoError(t, svc.RecordInteraction(ctx, kept))
	assert.Equal(t, "live", kept.CycleID)

	dropped := &Interaction{UserID: "alice", Query: "q2", Response: "r2", CycleID: "done"}
	require.NoError(t, svc.RecordInteraction(ctx, dropped))
	assert.Empty(t, dropped.CycleID)

	byCycle, err := svc.InteractionsByCycle(ctx, "done")
	require.NoError(t, err)
	assert.Empty(t, byCycle)
}

func TestBuildContext_RepeatableOverTies(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	writer := NewService(repo, nil, keywordEmbedder{}, nil, DefaultOptions())
	for _, q := range []string{"quantum stones", "stones again", "quantum lunch", "stones", "qubit stones"} {
		require.NoError(t, writer.RecordInteraction(ctx, &Interaction{UserID: "alice", Query: q, Response: "same", CreatedAt: at}))
	}

	for name, embedder := range map[string]Embedder{"lexical": nil, "semantic": keywordEmbedder{}} {
		t.Run(name, func(t *testing.T) {
			svc := NewService(repo, nil, embedder, nil, Options{MaxMemories: 3})

			first, err := svc.BuildContext(ctx, "alice", "stones")
			require.NoError(t, err)
			second, err := svc.BuildContext(ctx, "alice", "stones")
			require.NoError(t, err)

			assert.Equal(t, first, second)
			assert.Len(t, strings.Split(first.MemorySummary, "\n- "), 3)
		})
	}
}

func TestRecordInteraction_TruncatesMemory(t *testing.T) {
	repo, _ := newTestRepo(t)
	svc := NewService(repo, nil, nil, nil, Options{SummaryMaxLength: 10})
	ctx := context.Background()

	require.NoError(t, svc.RecordInteraction(ctx, &Interaction{UserID: "alice", Query: "a long question", Response: "a long answer"}))

	mems, err := repo.ListMemories(ctx, "alice", 1)
	require.NoError(t, err)
	require.Len(t, mems, 1)
	assert.Equal(t, "User: a lo", mems[0].Content)
}

func TestRecordGenerated_QueuesRetryOnPersistenceFailure(t *testing.T) {
	repo, _ := newTestRepo(t)
	retry := &recordingRetry{}
	svc := NewService(failingSaveRepo{Repository: repo, err: errors.New("disk full")}, nil, nil, retry, DefaultOptions())

	it := &Interaction{UserID: "alice", Query: "q", Response: "r", QuantumSeed: 0.42}
	err := svc.RecordGenerated(context.Background(), it)
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindPersistence))

	require.Len(t, retry.its, 1)
	assert.Equal(t, it.ID, retry.its[0].ID)
	assert.Equal(t, 0.42, retry.its[0].QuantumSeed)
	assert.Equal(t, it.ID, retry.recs[0].ID)
}

func TestRecordGenerated_SuccessDoesNotQueue(t *testing.T) {
	repo, _ := newTestRepo(t)
	retry := &recordingRetry{}
	svc := NewService(repo, nil, nil, retry, DefaultOptions())

	require.NoError(t, svc.RecordGenerated(context.Background(), &Interaction{UserID: "alice", Query: "q", Response: "r"}))
	assert.Empty(t, retry.its)
}

func TestRecordInteraction_NoRetryOnManualSave(t *testing.T) {
	repo, _ := newTestRepo(t)
	retry := &recordingRetry{}
	svc := NewService(failingSaveRepo{Repository: repo, err: errors.New("disk full")}, nil, nil, retry, DefaultOptions())

	err := svc.RecordInteraction(context.Background(), &Interaction{UserID: "alice", Query: "q", Response: "r"})
	assert.True(t, failure.Is(err, failure.KindPersistence))
	assert.Empty(t, retry.its)
}

func TestRetryEventRoundTrip(t *testing.T) {
	it := Interaction{
		ID: uuid.New(), UserID: "alice", Query: "q", Response: "r", CycleID: "c1",
		QuantumSeed: 0.3, CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	rec := Record{ID: it.ID, UserID: "alice", Content: "User: q\nAssistant: r", Embedding: []float32{0.1}, CreatedAt: it.CreatedAt}

	gotIt, gotRec, err := fromEvent(toEvent(it, rec, "boom"))
	require.NoError(t, err)
	assert.Equal(t, it, *gotIt)
	assert.Equal(t, rec, *gotRec)
}
