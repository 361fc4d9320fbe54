package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"rag-agent-be/internal/entity"
	"rag-agent-be/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionUpsert(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository()
	id := uuid.New()
	t0 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	created, err := repo.Upsert(ctx, id, entity.SessionPatch{Touch: t0})
	require.NoError(t, err)
	assert.Equal(t, t0, created.CreatedAt)
	assert.Equal(t, t0, created.LastActiveAt)
	assert.Nil(t, created.Selection)

	t.Run("last active never moves backwards", func(t *testing.T) {
		s, err := repo.Upsert(ctx, id, entity.SessionPatch{Touch: t0.Add(-time.Minute)})
		require.NoError(t, err)
		assert.Equal(t, t0, s.LastActiveAt)

		s, err = repo.Upsert(ctx, id, entity.SessionPatch{Touch: t0.Add(time.Minute)})
		require.NoError(t, err)
		assert.Equal(t, t0.Add(time.Minute), s.LastActiveAt)
		assert.Equal(t, t0, s.CreatedAt)
	})

	t.Run("selection overwrite keeps other fields", func(t *testing.T) {
		sel := &entity.SelectionContext{Text: "first", CapturedAt: t0}
		_, err := repo.Upsert(ctx, id, entity.SessionPatch{Touch: t0, Selection: sel})
		require.NoError(t, err)

		sel2 := &entity.SelectionContext{Text: "second", CapturedAt: t0.Add(time.Second)}
		s, err := repo.Upsert(ctx, id, entity.SessionPatch{Touch: t0, Selection: sel2})
		require.NoError(t, err)
		require.NotNil(t, s.Selection)
		assert.Equal(t, "second", s.Selection.Text)

		s, err = repo.Upsert(ctx, id, entity.SessionPatch{Touch: t0})
		require.NoError(t, err)
		require.NotNil(t, s.Selection, "a patch without selection must not clear it")
		assert.Equal(t, "second", s.Selection.Text)
	})

	t.Run("returned copies are detached", func(t *testing.T) {
		s, err := repo.FindById(ctx, id)
		require.NoError(t, err)
		s.Selection.Text = "mutated"

		again, err := repo.FindById(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "second", again.Selection.Text)
	})

	t.Run("unknown id", func(t *testing.T) {
		s, err := repo.FindById(ctx, uuid.New())
		assert.NoError(t, err)
		assert.Nil(t, s)
	})
}

func TestSessionUpsertConcurrentFirstWrite(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository()
	id := uuid.New()
	base := time.Now().UTC()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Upsert(ctx, id, entity.SessionPatch{Touch: base.Add(time.Duration(i) * time.Millisecond)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	s, err := repo.FindById(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, base.Add(19*time.Millisecond), s.LastActiveAt)
}

func TestTurnRepository(t *testing.T) {
	ctx := context.Background()
	factory := NewRepositoryFactory()
	sessionId := uuid.New()
	_, err := factory.Sessions.Upsert(ctx, sessionId, entity.SessionPatch{Touch: time.Now()})
	require.NoError(t, err)

	appendTurn := func(role, content, key string) *entity.ChatTurn {
		turn := &entity.ChatTurn{ChatSessionId: sessionId, Role: role, Content: content, TurnKey: key}
		_, err := factory.Turns.Append(ctx, turn)
		require.NoError(t, err)
		return turn
	}

	first := appendTurn("user", "q1", "r1:user")
	appendTurn("assistant", "a1", "r1:assistant")
	third := appendTurn("user", "q2", "")
	appendTurn("assistant", "a2", "")

	t.Run("ids increase", func(t *testing.T) {
		all, err := factory.Turns.FindBySession(ctx, sessionId)
		require.NoError(t, err)
		require.Len(t, all, 4)
		for i := 1; i < len(all); i++ {
			assert.Greater(t, all[i].Id, all[i-1].Id)
			assert.False(t, all[i].CreatedAt.Before(all[i-1].CreatedAt))
		}
	})

	t.Run("duplicate key resolves to stored turn", func(t *testing.T) {
		retry := &entity.ChatTurn{ChatSessionId: sessionId, Role: "user", Content: "q1 again", TurnKey: "r1:user"}
		created, err := factory.Turns.Append(ctx, retry)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.Id, retry.Id)
		assert.Equal(t, "q1", retry.Content)

		all, _ := factory.Turns.FindBySession(ctx, sessionId)
		assert.Len(t, all, 4)
	})

	t.Run("recent excludes later turns", func(t *testing.T) {
		recent, err := factory.Turns.FindRecent(ctx, sessionId, third.Id, 10)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "q1", recent[0].Content)
		assert.Equal(t, "a1", recent[1].Content)
	})

	t.Run("recent keeps newest within limit", func(t *testing.T) {
		recent, err := factory.Turns.FindRecent(ctx, sessionId, 0, 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "q2", recent[0].Content)
		assert.Equal(t, "a2", recent[1].Content)
	})

	t.Run("unknown session is a constraint violation", func(t *testing.T) {
		_, err := factory.Turns.Append(ctx, &entity.ChatTurn{ChatSessionId: uuid.New(), Role: "user", Content: "x"})
		assert.ErrorIs(t, err, contract.ErrConstraintViolation)
	})
}

func TestPassageSearch(t *testing.T) {
	ctx := context.Background()
	repo := NewPassageRepository()
	require.NoError(t, repo.CreateBulk(ctx, []*entity.DocumentPassage{
		{SourceId: "a", Content: "alpha", Embedding: []float32{1, 0}},
		{SourceId: "b", Content: "beta", Embedding: []float32{0.8, 0.6}},
		{SourceId: "c", Content: "gamma", Embedding: []float32{0, 1}},
		{SourceId: "wrong-dims", Content: "delta", Embedding: []float32{1, 0, 0}},
	}))

	tests := []struct {
		name      string
		limit     int
		threshold float64
		want      []string
	}{
		{name: "ranked by similarity", limit: 3, threshold: -1, want: []string{"a", "b", "c"}},
		{name: "limit applies after ranking", limit: 1, threshold: -1, want: []string{"a"}},
		{name: "threshold filters", limit: 3, threshold: 0.5, want: []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.SearchSimilar(ctx, []float32{1, 0}, tt.limit, tt.threshold)
			require.NoError(t, err)
			got := make([]string, len(res))
			for i, r := range res {
				got[i] = r.Passage.SourceId
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
