// Package webapi implements the REST API for the Pulse dashboard service.
// It handles HTTP routing, request decoding, validation, and response formatting.
package webapi

import (
	"strings"
	"time"

	"github.com/inclue/pulse/internal/expr"
	"github.com/inclue/pulse/internal/store"
)

// Card represents the card configuration resource as stored in the database.
// It maps directly to the 'cards' table in PostgreSQL.
type Card struct {
	// ID is the internal surrogate key. Read-only.
	ID int64 `json:"id"`

	// Name is the human-readable label shown on the card.
	Name string `json:"name"`

	// ComponentKind selects the renderer. Only "card" kinds are computed.
	ComponentKind string `json:"component_kind"`

	// IsActive excludes the card from every refresh when false.
	IsActive bool `json:"is_active"`

	// Sequence orders cards on the dashboard. Not required unique.
	Sequence int `json:"sequence"`

	Icon        string `json:"icon,omitempty"`
	StaticValue string `json:"static_value,omitempty"`
	Subtitle    string `json:"subtitle,omitempty"`
	Color       string `json:"color"`

	// TargetEntity names the entity type queried. Empty means the card
	// shows StaticValue only.
	TargetEntity string `json:"target_entity,omitempty"`
	CountField   string `json:"count_field,omitempty"`
	FilterExpr   string `json:"filter_expr,omitempty"`
	CalcKind     string `json:"calc_kind"`
	Formula      string `json:"formula,omitempty"`

	FacilitatorID       int64  `json:"facilitator_id,omitempty"`
	SessionFilter       string `json:"session_filter"`
	FilterByCurrentUser bool   `json:"filter_by_current_user"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// -----------------------------------------------------------------------------
// Reusable Validation Logic
// -----------------------------------------------------------------------------

// Enum values accepted on the wire. Kept here rather than in store so the API
// contract has a single authority for what clients may send.
var (
	validComponentKinds = map[string]struct{}{
		string(store.ComponentChart):              {},
		string(store.ComponentKPI):                {},
		string(store.ComponentList):               {},
		string(store.ComponentCustom):             {},
		string(store.ComponentCard):               {},
		string(store.ComponentParticipationStats): {},
	}

	validCalcKinds = map[string]struct{}{
		string(store.CalcCount):                  {},
		string(store.CalcSum):                    {},
		string(store.CalcAvg):                    {},
		string(store.CalcFormula):                {},
		string(store.CalcCompletionRate):         {},
		string(store.CalcFacilitatorPerformance): {},
	}

	validColors = map[string]struct{}{
		string(store.ColorPrimary):   {},
		string(store.ColorSuccess):   {},
		string(store.ColorWarning):   {},
		string(store.ColorInfo):      {},
		string(store.ColorDanger):    {},
		string(store.ColorSecondary): {},
	}

	validSessionFilters = map[string]struct{}{
		string(store.SessionAll):      {},
		string(store.SessionKickoff):  {},
		string(store.SessionFollowup): {},
	}
)

func validateCardName(name string) *ErrorResponse {
	if name == "" {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "Name is required",
		}
	}
	if len(name) > 255 {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "Name must be less than 255 characters",
		}
	}
	return nil
}

func validateEnum(value, field string, allowed map[string]struct{}) *ErrorResponse {
	if _, ok := allowed[value]; !ok {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "Invalid value for " + field,
			Details: []ErrorDetail{{Field: field, Issue: "unsupported value: " + value}},
		}
	}
	return nil
}

// validateFilterExpr parse-checks the filter so authoring typos surface as a
// 400 instead of a "Domain Error" tag at render time. The name table mirrors
// the one used at compute time; values are placeholders, only resolvability
// matters here.
func validateFilterExpr(filter string) *ErrorResponse {
	if expr.IsEmptyFilter(filter) {
		return nil
	}
	names := expr.NameTable{
		"today": "",
		"now":   "",
		"uid":   int64(0),
		"user":  int64(0),
	}
	if _, err := expr.ParseFilter(filter, names); err != nil {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "Invalid filter expression",
			Details: []ErrorDetail{{Field: "filter_expr", Issue: err.Error()}},
		}
	}
	return nil
}

// CreateCardRequest defines the payload for creating a new card.
// Used for JSON decoding in the POST /cards endpoint.
type CreateCardRequest struct {
	// Name is required.
	Name string `json:"name"`

	// ComponentKind defaults to "card" if omitted.
	ComponentKind string `json:"component_kind,omitempty"`

	// IsActive defaults to false if omitted (new cards are drafted hidden).
	IsActive bool `json:"is_active"`

	Sequence    int    `json:"sequence"`
	Icon        string `json:"icon,omitempty"`
	StaticValue string `json:"static_value,omitempty"`
	Subtitle    string `json:"subtitle,omitempty"`

	// Color defaults to "primary" if omitted.
	Color string `json:"color,omitempty"`

	TargetEntity string `json:"target_entity,omitempty"`
	CountField   string `json:"count_field,omitempty"`
	FilterExpr   string `json:"filter_expr,omitempty"`

	// CalcKind defaults to "count" if omitted.
	CalcKind string `json:"calc_kind,omitempty"`
	Formula  string `json:"formula,omitempty"`

	FacilitatorID int64 `json:"facilitator_id,omitempty"`

	// SessionFilter defaults to "all" if omitted.
	SessionFilter       string `json:"session_filter,omitempty"`
	FilterByCurrentUser bool   `json:"filter_by_current_user"`
}

// Sanitize cleans up input data by trimming whitespace and applying defaults.
// This prevents "dirty" data from entering the system logic.
func (r *CreateCardRequest) Sanitize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Subtitle = strings.TrimSpace(r.Subtitle)
	r.Icon = strings.TrimSpace(r.Icon)
	r.TargetEntity = strings.TrimSpace(r.TargetEntity)
	r.CountField = strings.TrimSpace(r.CountField)
	r.FilterExpr = strings.TrimSpace(r.FilterExpr)
	r.Formula = strings.TrimSpace(r.Formula)

	if r.ComponentKind == "" {
		r.ComponentKind = string(store.ComponentCard)
	}
	if r.Color == "" {
		r.Color = string(store.ColorPrimary)
	}
	if r.CalcKind == "" {
		r.CalcKind = string(store.CalcCount)
	}
	if r.SessionFilter == "" {
		r.SessionFilter = string(store.SessionAll)
	}
}

// Validate checks if the request data adheres to business rules.
// It returns a structured *ErrorResponse if validation fails, or nil if valid.
func (r *CreateCardRequest) Validate() *ErrorResponse {
	if err := validateCardName(r.Name); err != nil {
		return err
	}
	if err := validateEnum(r.ComponentKind, "component_kind", validComponentKinds); err != nil {
		return err
	}
	if err := validateEnum(r.Color, "color", validColors); err != nil {
		return err
	}
	if err := validateEnum(r.CalcKind, "calc_kind", validCalcKinds); err != nil {
		return err
	}
	if err := validateEnum(r.SessionFilter, "session_filter", validSessionFilters); err != nil {
		return err
	}
	if err := validateFilterExpr(r.FilterExpr); err != nil {
		return err
	}

	if r.CalcKind == string(store.CalcFormula) && r.Formula == "" {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "Formula is required when calc_kind is formula",
		}
	}
	if (r.CalcKind == string(store.CalcSum) || r.CalcKind == string(store.CalcAvg)) && r.CountField == "" {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "Count field is required when calc_kind is sum or avg",
		}
	}

	return nil
}

// UpdateCardRequest defines the payload for partial updates (PATCH).
// Pointers are used to distinguish between "missing field" (do nothing)
// and "zero value" (explicit update).
type UpdateCardRequest struct {
	Name          *string `json:"name,omitempty"`
	ComponentKind *string `json:"component_kind,omitempty"`
	IsActive      *bool   `json:"is_active,omitempty"`
	Sequence      *int    `json:"sequence,omitempty"`
	Icon          *string `json:"icon,omitempty"`
	StaticValue   *string `json:"static_value,omitempty"`
	Subtitle      *string `json:"subtitle,omitempty"`
	Color         *string `json:"color,omitempty"`

	TargetEntity *string `json:"target_entity,omitempty"`
	CountField   *string `json:"count_field,omitempty"`
	FilterExpr   *string `json:"filter_expr,omitempty"`
	CalcKind     *string `json:"calc_kind,omitempty"`
	Formula      *string `json:"formula,omitempty"`

	FacilitatorID       *int64  `json:"facilitator_id,omitempty"`
	SessionFilter       *string `json:"session_filter,omitempty"`
	FilterByCurrentUser *bool   `json:"filter_by_current_user,omitempty"`
}

// Validate checks if the provided fields adhere to business rules.
func (r *UpdateCardRequest) Validate() *ErrorResponse {
	if r.Name != nil {
		if err := validateCardName(*r.Name); err != nil {
			return err
		}
	}
	if r.ComponentKind != nil {
		if err := validateEnum(*r.ComponentKind, "component_kind", validComponentKinds); err != nil {
			return err
		}
	}
	if r.Color != nil {
		if err := validateEnum(*r.Color, "color", validColors); err != nil {
			return err
		}
	}
	if r.CalcKind != nil {
		if err := validateEnum(*r.CalcKind, "calc_kind", validCalcKinds); err != nil {
			return err
		}
	}
	if r.SessionFilter != nil {
		if err := validateEnum(*r.SessionFilter, "session_filter", validSessionFilters); err != nil {
			return err
		}
	}
	if r.FilterExpr != nil {
		if err := validateFilterExpr(*r.FilterExpr); err != nil {
			return err
		}
	}
	return nil
}

// Apply writes the provided fields onto the stored card.
func (r *UpdateCardRequest) Apply(c *store.Card) {
	if r.Name != nil {
		c.Name = strings.TrimSpace(*r.Name)
	}
	if r.ComponentKind != nil {
		c.ComponentKind = store.ComponentKind(*r.ComponentKind)
	}
	if r.IsActive != nil {
		c.IsActive = *r.IsActive
	}
	if r.Sequence != nil {
		c.Sequence = *r.Sequence
	}
	if r.Icon != nil {
		c.Icon = strings.TrimSpace(*r.Icon)
	}
	if r.StaticValue != nil {
		c.StaticValue = *r.StaticValue
	}
	if r.Subtitle != nil {
		c.Subtitle = strings.TrimSpace(*r.Subtitle)
	}
	if r.Color != nil {
		c.Color = store.Color(*r.Color)
	}
	if r.TargetEntity != nil {
		c.TargetEntity = strings.TrimSpace(*r.TargetEntity)
	}
	if r.CountField != nil {
		c.CountField = strings.TrimSpace(*r.CountField)
	}
	if r.FilterExpr != nil {
		c.FilterExpr = strings.TrimSpace(*r.FilterExpr)
	}
	if r.CalcKind != nil {
		c.CalcKind = store.CalcKind(*r.CalcKind)
	}
	if r.Formula != nil {
		c.Formula = strings.TrimSpace(*r.Formula)
	}
	if r.FacilitatorID != nil {
		c.FacilitatorID = *r.FacilitatorID
	}
	if r.SessionFilter != nil {
		c.SessionFilter = store.SessionFilter(*r.SessionFilter)
	}
	if r.FilterByCurrentUser != nil {
		c.FilterByCurrentUser = *r.FilterByCurrentUser
	}
}

// PaginatedResponse is a standard wrapper for list endpoints to support offset pagination.
type PaginatedResponse struct {
	// Data holds the list of resources (e.g., []Card).
	Data interface{} `json:"data"`

	// Pagination contains pagination metadata.
	Pagination Pagination `json:"pagination"`
}

// Pagination metadata for the frontend pager.
type Pagination struct {
	TotalItems  int64 `json:"total_items"`
	TotalPages  int   `json:"total_pages"`
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
}

// ErrorResponse represents a standard structured API error.
type ErrorResponse struct {
	// Code is a machine-readable error code (e.g., "ERR_INVALID_INPUT").
	Code string `json:"code"`

	// Message is a human-readable description of the error.
	Message string `json:"message"`

	// Details provides optional granular validation errors.
	Details []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail provides context about specific field validation failures.
type ErrorDetail struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}
