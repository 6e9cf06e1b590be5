// Package dashboard assembles computed card payloads for the UI poller.
// It is thin orchestration: the card engine does the actual computation.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/inclue/pulse/internal/cache"
	"github.com/inclue/pulse/internal/cardengine"
	"github.com/inclue/pulse/internal/observability"
	"github.com/inclue/pulse/internal/scope"
	"github.com/inclue/pulse/internal/store"
)

// Payload is the presentation bundle for one computed card.
type Payload struct {
	Value    string `json:"value"`
	Name     string `json:"name"`
	Subtitle string `json:"subtitle"`
	Color    string `json:"color"`
	Icon     string `json:"icon"`
}

// Component is a payload with its card identity, used by the ordered
// components endpoint.
type Component struct {
	ID int64 `json:"id"`
	Payload
}

// Service computes dashboard payloads for one actor per request.
// Card computations within a request run sequentially and share no state, so
// concurrent requests from different actors are fully independent.
type Service struct {
	repo    store.CardRepository
	engine  *cardengine.Engine
	configs *cache.ConfigCache // optional
	logger  *slog.Logger
}

// New creates a dashboard service. configs may be nil to disable the L1
// config cache (every refresh then hits the store).
func New(repo store.CardRepository, engine *cardengine.Engine, configs *cache.ConfigCache, logger *slog.Logger) *Service {
	if repo == nil {
		panic("dashboard: card repository cannot be nil")
	}
	if engine == nil {
		panic("dashboard: card engine cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		engine:  engine,
		configs: configs,
		logger:  logger,
	}
}

// Refresh computes all active card-kind configs for the actor and returns a
// mapping from card id to payload. A failing card renders its error tag; only
// a failure to enumerate the cards themselves is returned as an error.
func (s *Service) Refresh(ctx context.Context, actor scope.Actor) (map[string]Payload, error) {
	cards, err := s.activeCards(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		observability.RefreshDuration.Observe(time.Since(start).Seconds())
	}()

	out := make(map[string]Payload, len(cards))
	for _, c := range cards {
		out[strconv.FormatInt(c.ID, 10)] = s.payload(ctx, c, actor)
	}
	return out, nil
}

// Components returns the active card payloads ordered by sequence, for
// renderers that need a stable layout rather than a keyed mapping.
func (s *Service) Components(ctx context.Context, actor scope.Actor) ([]Component, error) {
	cards, err := s.activeCards(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		observability.RefreshDuration.Observe(time.Since(start).Seconds())
	}()

	out := make([]Component, 0, len(cards))
	for _, c := range cards {
		out = append(out, Component{ID: c.ID, Payload: s.payload(ctx, c, actor)})
	}
	return out, nil
}

func (s *Service) payload(ctx context.Context, c *store.Card, actor scope.Actor) Payload {
	return Payload{
		Value:    s.engine.ComputeDisplayValue(ctx, c, actor),
		Name:     c.Name,
		Subtitle: c.Subtitle,
		Color:    string(c.Color),
		Icon:     c.Icon,
	}
}

// activeCards loads the active card configs, from the L1 when possible.
// The store returns them ordered by sequence; the cache preserves that order.
func (s *Service) activeCards(ctx context.Context) ([]*store.Card, error) {
	if s.configs != nil {
		if cards, ok := s.configs.Get(store.ComponentCard); ok {
			return cards, nil
		}
	}

	cards, err := s.repo.ListActiveCards(ctx, store.ComponentCard)
	if err != nil {
		return nil, fmt.Errorf("failed to load active cards: %w", err)
	}

	if s.configs != nil {
		s.configs.Set(store.ComponentCard, cards)
	}
	return cards, nil
}
