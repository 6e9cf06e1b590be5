package dashboard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inclue/pulse/internal/cache"
	"github.com/inclue/pulse/internal/cardengine"
	"github.com/inclue/pulse/internal/entity"
	"github.com/inclue/pulse/internal/scope"
	"github.com/inclue/pulse/internal/store"
)

// stubRepo serves a fixed card list and records how often it was asked.
type stubRepo struct {
	store.CardRepository

	cards []*store.Card
	err   error
	calls int
}

func (s *stubRepo) ListActiveCards(_ context.Context, kind store.ComponentKind) ([]*store.Card, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	var out []*store.Card
	for _, c := range s.cards {
		if c.IsActive && c.ComponentKind == kind {
			out = append(out, c)
		}
	}
	return out, nil
}

func newTestService(t *testing.T, repo *stubRepo, configs *cache.ConfigCache) *Service {
	t.Helper()

	registry := entity.NewRegistry()
	registry.Register("invoice", entity.NewMemoryAccessor(
		[]string{"id", "amount"},
		entity.RecordSet{
			{"id": int64(1), "amount": float64(5)},
			{"id": int64(2), "amount": float64(7)},
		},
	))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := cardengine.New(registry, scope.NewResolver(registry, log), log)
	return New(repo, engine, configs, log)
}

func activeCard(id int64, seq int) *store.Card {
	return &store.Card{
		ID:            id,
		Name:          "Invoices",
		ComponentKind: store.ComponentCard,
		IsActive:      true,
		Sequence:      seq,
		TargetEntity:  "invoice",
		CalcKind:      store.CalcCount,
		Color:         store.ColorPrimary,
		Icon:          "fa-file",
		Subtitle:      "all time",
	}
}

func TestRefresh(t *testing.T) {
	repo := &stubRepo{cards: []*store.Card{
		activeCard(1, 10),
		activeCard(2, 20),
		{ID: 3, Name: "Hidden", ComponentKind: store.ComponentCard, IsActive: false},
		{ID: 4, Name: "Chart", ComponentKind: store.ComponentChart, IsActive: true},
	}}

	svc := newTestService(t, repo, nil)

	got, err := svc.Refresh(context.Background(), scope.Actor{UserID: 1})
	require.NoError(t, err)

	// Inactive and non-card components never appear.
	require.Len(t, got, 2)
	assert.NotContains(t, got, "3")
	assert.NotContains(t, got, "4")

	p := got["1"]
	assert.Equal(t, "2", p.Value)
	assert.Equal(t, "Invoices", p.Name)
	assert.Equal(t, "all time", p.Subtitle)
	assert.Equal(t, "primary", p.Color)
	assert.Equal(t, "fa-file", p.Icon)
}

func TestRefresh_BrokenCardDoesNotAbortBatch(t *testing.T) {
	broken := activeCard(1, 10)
	broken.TargetEntity = "ghost"

	repo := &stubRepo{cards: []*store.Card{broken, activeCard(2, 20)}}
	svc := newTestService(t, repo, nil)

	got, err := svc.Refresh(context.Background(), scope.Actor{})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Model Not Found", got["1"].Value)
	assert.Equal(t, "2", got["2"].Value)
}

func TestRefresh_RepositoryFailureSurfaces(t *testing.T) {
	repo := &stubRepo{err: errors.New("connection refused")}
	svc := newTestService(t, repo, nil)

	_, err := svc.Refresh(context.Background(), scope.Actor{})
	require.Error(t, err)
}

func TestComponents_OrderedBySequence(t *testing.T) {
	// The repository contract returns cards ordered by sequence; the service
	// must preserve that order.
	repo := &stubRepo{cards: []*store.Card{
		activeCard(5, 1),
		activeCard(3, 2),
		activeCard(9, 3),
	}}
	svc := newTestService(t, repo, nil)

	got, err := svc.Components(context.Background(), scope.Actor{})
	require.NoError(t, err)
	require.Len(t, got, 3)

	ids := []int64{got[0].ID, got[1].ID, got[2].ID}
	assert.Equal(t, []int64{5, 3, 9}, ids)
}

func TestRefresh_UsesConfigCache(t *testing.T) {
	repo := &stubRepo{cards: []*store.Card{activeCard(1, 10)}}

	configs, err := cache.NewConfigCache(16, time.Minute)
	require.NoError(t, err)
	defer configs.Close()

	svc := newTestService(t, repo, configs)

	_, err = svc.Refresh(context.Background(), scope.Actor{})
	require.NoError(t, err)
	_, err = svc.Refresh(context.Background(), scope.Actor{})
	require.NoError(t, err)

	assert.Equal(t, 1, repo.calls, "second refresh should be served from the cache")
}
