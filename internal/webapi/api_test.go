package webapi_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inclue/pulse/internal/cache"
	"github.com/inclue/pulse/internal/cardengine"
	"github.com/inclue/pulse/internal/dashboard"
	"github.com/inclue/pulse/internal/entity"
	"github.com/inclue/pulse/internal/scope"
	"github.com/inclue/pulse/internal/store"
	"github.com/inclue/pulse/internal/webapi"
)

// memRepo is an in-memory CardRepository for handler tests.
type memRepo struct {
	nextID int64
	cards  map[int64]*store.Card
}

var _ store.CardRepository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{nextID: 1, cards: make(map[int64]*store.Card)}
}

func (m *memRepo) CreateCard(_ context.Context, c *store.Card) error {
	c.ID = m.nextID
	m.nextID++
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	cp := *c
	m.cards[c.ID] = &cp
	return nil
}

func (m *memRepo) GetCard(_ context.Context, id int64) (*store.Card, error) {
	c, ok := m.cards[id]
	if !ok {
		return nil, store.ErrCardNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memRepo) ListCards(_ context.Context, limit, offset int) ([]*store.Card, int64, error) {
	ids := make([]int64, 0, len(m.cards))
	for id := range m.cards {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	var out []*store.Card
	for i, id := range ids {
		if i < offset {
			continue
		}
		if len(out) == limit {
			break
		}
		cp := *m.cards[id]
		out = append(out, &cp)
	}
	return out, int64(len(m.cards)), nil
}

func (m *memRepo) UpdateCard(_ context.Context, c *store.Card) error {
	if _, ok := m.cards[c.ID]; !ok {
		return store.ErrCardNotFound
	}
	c.UpdatedAt = time.Now().UTC()
	cp := *c
	m.cards[c.ID] = &cp
	return nil
}

func (m *memRepo) DeleteCard(_ context.Context, id int64) error {
	if _, ok := m.cards[id]; !ok {
		return store.ErrCardNotFound
	}
	delete(m.cards, id)
	return nil
}

func (m *memRepo) ListActiveCards(_ context.Context, kind store.ComponentKind) ([]*store.Card, error) {
	var out []*store.Card
	for _, c := range m.cards {
		if c.IsActive && c.ComponentKind == kind {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sequence != out[j].Sequence {
			return out[i].Sequence < out[j].Sequence
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func newTestAPI(t *testing.T, repo *memRepo, skipAuth bool, apiKeyHash string) *webapi.API {
	t.Helper()

	registry := entity.NewRegistry()
	registry.Register("invoice", entity.NewMemoryAccessor(
		[]string{"id", "amount", "owner_user_id"},
		entity.RecordSet{
			{"id": int64(1), "amount": float64(5), "owner_user_id": int64(7)},
			{"id": int64(2), "amount": float64(7), "owner_user_id": int64(7)},
			{"id": int64(3), "amount": float64(9), "owner_user_id": int64(8)},
		},
	))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := cardengine.New(registry, scope.NewResolver(registry, log), log)
	dash := dashboard.New(repo, engine, nil, log)

	return webapi.NewAPIWithConfig(repo, dash, cache.NoopPublisher{}, apiKeyHash, skipAuth)
}

func doJSON(t *testing.T, api *webapi.API, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rr := httptest.NewRecorder()
	api.Router.ServeHTTP(rr, req)
	return rr
}

func TestHealthCheck(t *testing.T) {
	api := newTestAPI(t, newMemRepo(), true, "")

	rr := doJSON(t, api, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestAuthentication(t *testing.T) {
	sum := sha256.Sum256([]byte("valid-key"))
	api := newTestAPI(t, newMemRepo(), false, hex.EncodeToString(sum[:]))

	t.Run("missing key is rejected", func(t *testing.T) {
		rr := doJSON(t, api, http.MethodGet, "/api/v1/cards/", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("wrong key is rejected", func(t *testing.T) {
		rr := doJSON(t, api, http.MethodGet, "/api/v1/cards/", nil, map[string]string{"X-API-Key": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("valid key is accepted", func(t *testing.T) {
		rr := doJSON(t, api, http.MethodGet, "/api/v1/cards/", nil, map[string]string{"X-API-Key": "valid-key"})
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("health stays public", func(t *testing.T) {
		rr := doJSON(t, api, http.MethodGet, "/health", nil, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestCreateCard(t *testing.T) {
	t.Run("creates a valid card", func(t *testing.T) {
		api := newTestAPI(t, newMemRepo(), true, "")

		rr := doJSON(t, api, http.MethodPost, "/api/v1/cards/", map[string]any{
			"name":          "Open Invoices",
			"is_active":     true,
			"target_entity": "invoice",
			"calc_kind":     "count",
		}, nil)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		var got webapi.Card
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.Equal(t, int64(1), got.ID)
		assert.Equal(t, "Open Invoices", got.Name)
		// Defaults applied by Sanitize.
		assert.Equal(t, "card", got.ComponentKind)
		assert.Equal(t, "primary", got.Color)
		assert.Equal(t, "all", got.SessionFilter)
	})

	t.Run("rejects missing name", func(t *testing.T) {
		api := newTestAPI(t, newMemRepo(), true, "")

		rr := doJSON(t, api, http.MethodPost, "/api/v1/cards/", map[string]any{
			"calc_kind": "count",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("rejects unknown calc kind", func(t *testing.T) {
		api := newTestAPI(t, newMemRepo(), true, "")

		rr := doJSON(t, api, http.MethodPost, "/api/v1/cards/", map[string]any{
			"name":      "Bad",
			"calc_kind": "median",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("rejects malformed filter expression", func(t *testing.T) {
		api := newTestAPI(t, newMemRepo(), true, "")

		rr := doJSON(t, api, http.MethodPost, "/api/v1/cards/", map[string]any{
			"name":        "Bad Filter",
			"filter_expr": `[("status", "=",`,
		}, nil)
		require.Equal(t, http.StatusBadRequest, rr.Code)

		var resp webapi.ErrorResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "ERR_INVALID_INPUT", resp.Code)
	})

	t.Run("rejects formula kind without formula", func(t *testing.T) {
		api := newTestAPI(t, newMemRepo(), true, "")

		rr := doJSON(t, api, http.MethodPost, "/api/v1/cards/", map[string]any{
			"name":      "No Formula",
			"calc_kind": "formula",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("rejects invalid json", func(t *testing.T) {
		api := newTestAPI(t, newMemRepo(), true, "")

		req := httptest.NewRequest(http.MethodPost, "/api/v1/cards/", bytes.NewBufferString("{not json"))
		rr := httptest.NewRecorder()
		api.Router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestGetCard(t *testing.T) {
	repo := newMemRepo()
	require.NoError(t, repo.CreateCard(context.Background(), &store.Card{
		Name: "Existing", ComponentKind: store.ComponentCard,
	}))

	api := newTestAPI(t, repo, true, "")

	t.Run("returns existing card", func(t *testing.T) {
		rr := doJSON(t, api, http.MethodGet, "/api/v1/cards/1/", nil, nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var got webapi.Card
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.Equal(t, "Existing", got.Name)
	})

	t.Run("unknown id yields 404", func(t *testing.T) {
		rr := doJSON(t, api, http.MethodGet, "/api/v1/cards/999/", nil, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("malformed id yields 400", func(t *testing.T) {
		rr := doJSON(t, api, http.MethodGet, "/api/v1/cards/banana/", nil, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestListCards_Pagination(t *testing.T) {
	repo := newMemRepo()
	for range 15 {
		require.NoError(t, repo.CreateCard(context.Background(), &store.Card{
			Name: "Card", ComponentKind: store.ComponentCard,
		}))
	}

	api := newTestAPI(t, repo, true, "")

	t.Run("second page", func(t *testing.T) {
		rr := doJSON(t, api, http.MethodGet, "/api/v1/cards/?page=2&page_size=10", nil, nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp struct {
			Data       []webapi.Card     `json:"data"`
			Pagination webapi.Pagination `json:"pagination"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Len(t, resp.Data, 5)
		assert.Equal(t, int64(15), resp.Pagination.TotalItems)
		assert.Equal(t, 2, resp.Pagination.TotalPages)
		assert.Equal(t, 2, resp.Pagination.CurrentPage)
	})

	t.Run("malformed page yields 400", func(t *testing.T) {
		rr := doJSON(t, api, http.MethodGet, "/api/v1/cards/?page=banana", nil, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("out of bounds values are clamped", func(t *testing.T) {
		rr := doJSON(t, api, http.MethodGet, "/api/v1/cards/?page=-1&page_size=100000", nil, nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp struct {
			Pagination webapi.Pagination `json:"pagination"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Pagination.CurrentPage)
		assert.Equal(t, 100, resp.Pagination.PageSize)
	})
}

func TestUpdateCard(t *testing.T) {
	repo := newMemRepo()
	require.NoError(t, repo.CreateCard(context.Background(), &store.Card{
		Name: "Before", ComponentKind: store.ComponentCard, Color: store.ColorPrimary,
	}))

	api := newTestAPI(t, repo, true, "")

	t.Run("applies partial update", func(t *testing.T) {
		rr := doJSON(t, api, http.MethodPatch, "/api/v1/cards/1/", map[string]any{
			"name":      "After",
			"is_active": true,
		}, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var got webapi.Card
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.Equal(t, "After", got.Name)
		assert.True(t, got.IsActive)
		// Untouched fields survive.
		assert.Equal(t, "primary", got.Color)
	})

	t.Run("rejects invalid enum", func(t *testing.T) {
		rr := doJSON(t, api, http.MethodPatch, "/api/v1/cards/1/", map[string]any{
			"color": "magenta",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unknown id yields 404", func(t *testing.T) {
		rr := doJSON(t, api, http.MethodPatch, "/api/v1/cards/999/", map[string]any{
			"name": "Ghost",
		}, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestDeleteCard(t *testing.T) {
	repo := newMemRepo()
	require.NoError(t, repo.CreateCard(context.Background(), &store.Card{
		Name: "Doomed", ComponentKind: store.ComponentCard,
	}))

	api := newTestAPI(t, repo, true, "")

	rr := doJSON(t, api, http.MethodDelete, "/api/v1/cards/1/", nil, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = doJSON(t, api, http.MethodDelete, "/api/v1/cards/1/", nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDashboardRefresh(t *testing.T) {
	repo := newMemRepo()
	require.NoError(t, repo.CreateCard(context.Background(), &store.Card{
		Name: "Invoices", ComponentKind: store.ComponentCard, IsActive: true,
		Sequence: 1, TargetEntity: "invoice", CalcKind: store.CalcCount,
		Color: store.ColorSuccess, Icon: "fa-file",
	}))
	require.NoError(t, repo.CreateCard(context.Background(), &store.Card{
		Name: "Broken", ComponentKind: store.ComponentCard, IsActive: true,
		Sequence: 2, TargetEntity: "ghost", CalcKind: store.CalcCount,
	}))
	require.NoError(t, repo.CreateCard(context.Background(), &store.Card{
		Name: "Inactive", ComponentKind: store.ComponentCard, IsActive: false,
	}))

	api := newTestAPI(t, repo, true, "")

	t.Run("returns payloads keyed by card id", func(t *testing.T) {
		rr := doJSON(t, api, http.MethodGet, "/api/v1/dashboard/refresh", nil, nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var got map[string]dashboard.Payload
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		require.Len(t, got, 2)

		assert.Equal(t, "3", got["1"].Value)
		assert.Equal(t, "success", got["1"].Color)
		// A broken card degrades to its tag without failing the batch.
		assert.Equal(t, "Model Not Found", got["2"].Value)
	})

	t.Run("actor headers scope the computation", func(t *testing.T) {
		scoped := newMemRepo()
		require.NoError(t, scoped.CreateCard(context.Background(), &store.Card{
			Name: "My Invoices", ComponentKind: store.ComponentCard, IsActive: true,
			TargetEntity: "invoice", CalcKind: store.CalcCount, FilterByCurrentUser: true,
		}))
		api := newTestAPI(t, scoped, true, "")

		rr := doJSON(t, api, http.MethodGet, "/api/v1/dashboard/refresh", nil, map[string]string{
			"X-User-ID": "7",
		})
		require.Equal(t, http.StatusOK, rr.Code)

		var got map[string]dashboard.Payload
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.Equal(t, "2", got["1"].Value)
	})

	t.Run("components are ordered by sequence", func(t *testing.T) {
		rr := doJSON(t, api, http.MethodGet, "/api/v1/dashboard/components", nil, nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var got []dashboard.Component
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		require.Len(t, got, 2)
		assert.Equal(t, int64(1), got[0].ID)
		assert.Equal(t, int64(2), got[1].ID)
	})
}
