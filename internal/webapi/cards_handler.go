package webapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/inclue/pulse/internal/logger"
	"github.com/inclue/pulse/internal/store"
)

// handleCreateCard processes the POST /api/v1/cards request.
//
// Responsibilities:
// 1. Decodes the JSON payload into the CreateCardRequest DTO.
// 2. Sanitizes and Validates the input using the DTO's business logic.
// 3. Converts the DTO to the domain model (store.Card).
// 4. Persists the card using the Repository layer.
// 5. Returns the created resource with a 201 Created status.
func (a *API) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req CreateCardRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("invalid json payload", slog.String("error", err.Error()))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INVALID_JSON",
			Message: "Invalid JSON payload: " + err.Error(),
		})
		return
	}

	// We delegate sanitization and validation to the DTO to keep the
	// handler clean and testable.
	req.Sanitize()

	if errResp := req.Validate(); errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return
	}

	// Map DTO to Domain Model. We explicitly map fields to avoid coupling
	// the API contract directly to the DB schema.
	card := &store.Card{
		Name:                req.Name,
		ComponentKind:       store.ComponentKind(req.ComponentKind),
		IsActive:            req.IsActive,
		Sequence:            req.Sequence,
		Icon:                req.Icon,
		StaticValue:         req.StaticValue,
		Subtitle:            req.Subtitle,
		Color:               store.Color(req.Color),
		TargetEntity:        req.TargetEntity,
		CountField:          req.CountField,
		FilterExpr:          req.FilterExpr,
		CalcKind:            store.CalcKind(req.CalcKind),
		Formula:             req.Formula,
		FacilitatorID:       req.FacilitatorID,
		SessionFilter:       store.SessionFilter(req.SessionFilter),
		FilterByCurrentUser: req.FilterByCurrentUser,
	}

	if err := a.cards.CreateCard(r.Context(), card); err != nil {
		log.Error("failed to create card in db", slog.String("error", err.Error()))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INTERNAL",
			Message: "Failed to create card in database",
		})
		return
	}

	a.notifyCacheAsync(log)

	log.Info("card created successfully", slog.Int64("card_id", card.ID), slog.String("name", card.Name))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, mapStoreCardToResponse(card))
}

// handleListCards processes the GET /api/v1/cards request with offset
// pagination (page, page_size query parameters).
func (a *API) handleListCards(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	// We return 400 Bad Request if the user sends invalid types (e.g., page=banana).
	page, err := parseOptionalInt(r, "page", 1)
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INVALID_QUERY_PARAM",
			Message: err.Error(),
		})
		return
	}

	pageSize, err := parseOptionalInt(r, "page_size", 10)
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INVALID_QUERY_PARAM",
			Message: err.Error(),
		})
		return
	}

	// Silently clamp out-of-bounds values to keep the endpoint stable.
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100 // Hard limit to prevent large queries
	}

	offset := (page - 1) * pageSize

	cards, totalItems, err := a.cards.ListCards(r.Context(), pageSize, offset)
	if err != nil {
		log.Error("failed to list cards from db", slog.String("error", err.Error()))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INTERNAL",
			Message: "Failed to list cards",
		})
		return
	}

	dtos := make([]Card, len(cards))
	for i, c := range cards {
		dtos[i] = mapStoreCardToResponse(c)
	}

	totalPages := 0
	if totalItems > 0 {
		totalPages = int(math.Ceil(float64(totalItems) / float64(pageSize)))
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, PaginatedResponse{
		Data: dtos,
		Pagination: Pagination{
			TotalItems:  totalItems,
			TotalPages:  totalPages,
			CurrentPage: page,
			PageSize:    pageSize,
		},
	})
}

// handleGetCard processes the GET /api/v1/cards/{id} request.
func (a *API) handleGetCard(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	id, errResp := cardIDFromURL(r)
	if errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return
	}

	card, err := a.cards.GetCard(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrCardNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, ErrorResponse{
				Code:    "ERR_NOT_FOUND",
				Message: "Card not found",
			})
			return
		}
		log.Error("failed to get card from db", slog.Int64("card_id", id), slog.String("error", err.Error()))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INTERNAL",
			Message: "Failed to get card",
		})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, mapStoreCardToResponse(card))
}

// handleUpdateCard processes the PATCH /api/v1/cards/{id} request.
// It loads the current card, applies the provided fields and persists the
// whole row back.
func (a *API) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	id, errResp := cardIDFromURL(r)
	if errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return
	}

	var req UpdateCardRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("invalid json payload", slog.String("error", err.Error()))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INVALID_JSON",
			Message: "Invalid JSON payload: " + err.Error(),
		})
		return
	}

	if errResp := req.Validate(); errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return
	}

	card, err := a.cards.GetCard(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrCardNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, ErrorResponse{
				Code:    "ERR_NOT_FOUND",
				Message: "Card not found",
			})
			return
		}
		log.Error("failed to load card for update", slog.Int64("card_id", id), slog.String("error", err.Error()))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INTERNAL",
			Message: "Failed to load card",
		})
		return
	}

	req.Apply(card)

	if err := a.cards.UpdateCard(r.Context(), card); err != nil {
		if errors.Is(err, store.ErrCardNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, ErrorResponse{
				Code:    "ERR_NOT_FOUND",
				Message: "Card not found",
			})
			return
		}
		log.Error("failed to update card in db", slog.Int64("card_id", id), slog.String("error", err.Error()))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INTERNAL",
			Message: "Failed to update card",
		})
		return
	}

	a.notifyCacheAsync(log)

	log.Info("card updated successfully", slog.Int64("card_id", card.ID))
	render.Status(r, http.StatusOK)
	render.JSON(w, r, mapStoreCardToResponse(card))
}

// handleDeleteCard processes the DELETE /api/v1/cards/{id} request.
func (a *API) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	id, errResp := cardIDFromURL(r)
	if errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return
	}

	if err := a.cards.DeleteCard(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrCardNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, ErrorResponse{
				Code:    "ERR_NOT_FOUND",
				Message: "Card not found",
			})
			return
		}
		log.Error("failed to delete card from db", slog.Int64("card_id", id), slog.String("error", err.Error()))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INTERNAL",
			Message: "Failed to delete card",
		})
		return
	}

	a.notifyCacheAsync(log)

	log.Info("card deleted successfully", slog.Int64("card_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// --- Private Helpers ---

func cardIDFromURL(r *http.Request) (int64, *ErrorResponse) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "Card id must be a positive integer",
		}
	}
	return id, nil
}

// parseOptionalInt extracts an integer from the query string.
// If the parameter is missing, it returns the defaultValue.
// It only returns an error if the parameter is present but malformed.
func parseOptionalInt(r *http.Request, key string, defaultValue int) (int, error) {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultValue, nil
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, fmt.Errorf("parameter '%s' must be an integer", key)
	}
	return val, nil
}

// mapStoreCardToResponse converts the DB entity to the API Response DTO.
func mapStoreCardToResponse(c *store.Card) Card {
	return Card{
		ID:                  c.ID,
		Name:                c.Name,
		ComponentKind:       string(c.ComponentKind),
		IsActive:            c.IsActive,
		Sequence:            c.Sequence,
		Icon:                c.Icon,
		StaticValue:         c.StaticValue,
		Subtitle:            c.Subtitle,
		Color:               string(c.Color),
		TargetEntity:        c.TargetEntity,
		CountField:          c.CountField,
		FilterExpr:          c.FilterExpr,
		CalcKind:            string(c.CalcKind),
		Formula:             c.Formula,
		FacilitatorID:       c.FacilitatorID,
		SessionFilter:       string(c.SessionFilter),
		FilterByCurrentUser: c.FilterByCurrentUser,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}

// notifyCacheAsync publishes a config invalidation without blocking the
// response. Retries with backoff; a final failure is logged, the TTL on the
// L1 then bounds staleness.
func (a *API) notifyCacheAsync(log *slog.Logger) {
	go func() {
		// Create a context disconnected from the HTTP request.
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		const maxRetries = 3
		baseDelay := 100 * time.Millisecond

		for i := 0; i <= maxRetries; i++ {
			err := a.publisher.PublishInvalidation(ctx)
			if err == nil {
				return
			}

			if i == maxRetries {
				log.Error("failed to publish invalidation after retries",
					slog.String("error", err.Error()))
				return
			}

			log.Warn("failed to publish invalidation, retrying...",
				slog.Int("attempt", i+1),
				slog.String("error", err.Error()))

			time.Sleep(baseDelay * time.Duration(1<<i))
		}
	}()
}
