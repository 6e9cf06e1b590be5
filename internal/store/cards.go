// Package store provides the Data Access Layer (Repository) for the Pulse
// application. It handles all direct interactions with the PostgreSQL database
// using the pgx driver.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inclue/pulse/internal/validation"
)

// Compile-time check to verify that PostgresStore implements CardRepository.
var _ CardRepository = (*PostgresStore)(nil)

// ErrCardNotFound is returned when a card id does not exist.
var ErrCardNotFound = errors.New("card not found")

// ComponentKind selects how a dashboard component is rendered.
type ComponentKind string

// Component kinds. Only "card" components carry a computed value.
const (
	ComponentChart              ComponentKind = "chart"
	ComponentKPI                ComponentKind = "kpi"
	ComponentList               ComponentKind = "list"
	ComponentCustom             ComponentKind = "custom"
	ComponentCard               ComponentKind = "card"
	ComponentParticipationStats ComponentKind = "participation_stats"
)

// CalcKind selects the aggregation applied to the card's data source.
type CalcKind string

const (
	CalcCount                  CalcKind = "count"
	CalcSum                    CalcKind = "sum"
	CalcAvg                    CalcKind = "avg"
	CalcFormula                CalcKind = "formula"
	CalcCompletionRate         CalcKind = "completion_rate"
	CalcFacilitatorPerformance CalcKind = "facilitator_performance"
)

// Color is the card accent color shown by the UI.
type Color string

const (
	ColorPrimary   Color = "primary"
	ColorSuccess   Color = "success"
	ColorWarning   Color = "warning"
	ColorInfo      Color = "info"
	ColorDanger    Color = "danger"
	ColorSecondary Color = "secondary"
)

// SessionFilter narrows participation-based calculations by session type.
type SessionFilter string

const (
	SessionAll      SessionFilter = "all"
	SessionKickoff  SessionFilter = "kickoff"
	SessionFollowup SessionFilter = "followup"
)

// Card represents the database schema for a dashboard card configuration.
// It mirrors the 'cards' table structure.
type Card struct {
	ID            int64         `db:"id"`
	Name          string        `db:"name"`
	ComponentKind ComponentKind `db:"component_kind"`
	IsActive      bool          `db:"is_active"`
	Sequence      int           `db:"sequence"`

	// Presentation
	Icon        string `db:"icon"`
	StaticValue string `db:"static_value"`
	Subtitle    string `db:"subtitle"`
	Color       Color  `db:"color"`

	// Data source. TargetEntity is the entity-type name; empty means the
	// card shows StaticValue and no computation is attempted.
	TargetEntity string   `db:"target_entity"`
	CountField   string   `db:"count_field"`
	FilterExpr   string   `db:"filter_expr"`
	CalcKind     CalcKind `db:"calc_kind"`
	Formula      string   `db:"formula"`

	// Participation-specific scoping. FacilitatorID zero means unset.
	FacilitatorID       int64         `db:"facilitator_id"`
	SessionFilter       SessionFilter `db:"session_filter"`
	FilterByCurrentUser bool          `db:"filter_by_current_user"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// CardRepository defines the interface for card persistence operations.
// Using an interface allows for dependency injection and easier mocking in tests.
type CardRepository interface {
	// CreateCard inserts a new card and populates the ID and timestamps in the struct.
	CreateCard(ctx context.Context, c *Card) error

	// GetCard retrieves a card by id. Returns ErrCardNotFound if absent.
	GetCard(ctx context.Context, id int64) (*Card, error)

	// ListCards retrieves a paginated list of cards and the total count of records.
	// It orders results by id descending (deterministic).
	ListCards(ctx context.Context, limit, offset int) ([]*Card, int64, error)

	// UpdateCard writes all mutable fields of the card back to the database.
	// Returns ErrCardNotFound if the id does not exist.
	UpdateCard(ctx context.Context, c *Card) error

	// DeleteCard removes a card by id. Returns ErrCardNotFound if absent.
	DeleteCard(ctx context.Context, id int64) error

	// ListActiveCards retrieves all active cards of the given component kind,
	// ordered by sequence ascending (then id for stability).
	ListActiveCards(ctx context.Context, kind ComponentKind) ([]*Card, error)
}

// PostgresStore is the implementation of CardRepository backed by PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new repository instance with the given connection pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	validation.AssertNotNil(db, "database pool")
	return &PostgresStore{db: db}
}

const cardColumns = `id, name, component_kind, is_active, sequence,
	icon, static_value, subtitle, color,
	target_entity, count_field, filter_expr, calc_kind, formula,
	facilitator_id, session_filter, filter_by_current_user,
	created_at, updated_at`

// CreateCard inserts a new card into the database.
// It uses the RETURNING clause to get the server-generated ID and timestamps efficiently.
func (s *PostgresStore) CreateCard(ctx context.Context, c *Card) error {
	query := `
		INSERT INTO cards (
			name, component_kind, is_active, sequence,
			icon, static_value, subtitle, color,
			target_entity, count_field, filter_expr, calc_kind, formula,
			facilitator_id, session_filter, filter_by_current_user
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at, updated_at
	`

	err := s.db.QueryRow(ctx, query,
		c.Name,
		c.ComponentKind,
		c.IsActive,
		c.Sequence,
		c.Icon,
		c.StaticValue,
		c.Subtitle,
		c.Color,
		c.TargetEntity,
		c.CountField,
		c.FilterExpr,
		c.CalcKind,
		c.Formula,
		c.FacilitatorID,
		c.SessionFilter,
		c.FilterByCurrentUser,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert card: %w", err)
	}

	return nil
}

// GetCard retrieves a single card by id.
func (s *PostgresStore) GetCard(ctx context.Context, id int64) (*Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE id = $1`

	var c Card
	err := s.db.QueryRow(ctx, query, id).Scan(scanTargets(&c)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("failed to get card %d: %w", id, err)
	}

	return &c, nil
}

// ListCards retrieves a subset of cards based on pagination parameters.
// It executes two queries: one for the data and one for the total count.
func (s *PostgresStore) ListCards(ctx context.Context, limit, offset int) ([]*Card, int64, error) {
	// 1. Get Total Count (for pagination metadata)
	var total int64
	countQuery := `SELECT count(*) FROM cards`

	if err := s.db.QueryRow(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count cards: %w", err)
	}

	// If there are no cards, return empty immediately to save the second query.
	if total == 0 {
		return []*Card{}, 0, nil
	}

	// 2. Get Data
	query := `SELECT ` + cardColumns + ` FROM cards ORDER BY id DESC LIMIT $1 OFFSET $2`

	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list cards: %w", err)
	}
	// Ensure rows are closed to prevent connection leaks in the pool.
	defer rows.Close()

	cards, err := collectCards(rows, limit)
	if err != nil {
		return nil, 0, err
	}

	return cards, total, nil
}

// UpdateCard persists all mutable fields of the card.
func (s *PostgresStore) UpdateCard(ctx context.Context, c *Card) error {
	query := `
		UPDATE cards SET
			name = $2, component_kind = $3, is_active = $4, sequence = $5,
			icon = $6, static_value = $7, subtitle = $8, color = $9,
			target_entity = $10, count_field = $11, filter_expr = $12,
			calc_kind = $13, formula = $14,
			facilitator_id = $15, session_filter = $16, filter_by_current_user = $17,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`

	err := s.db.QueryRow(ctx, query,
		c.ID,
		c.Name,
		c.ComponentKind,
		c.IsActive,
		c.Sequence,
		c.Icon,
		c.StaticValue,
		c.Subtitle,
		c.Color,
		c.TargetEntity,
		c.CountField,
		c.FilterExpr,
		c.CalcKind,
		c.Formula,
		c.FacilitatorID,
		c.SessionFilter,
		c.FilterByCurrentUser,
	).Scan(&c.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCardNotFound
		}
		return fmt.Errorf("failed to update card %d: %w", c.ID, err)
	}

	return nil
}

// DeleteCard removes a card by id.
func (s *PostgresStore) DeleteCard(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM cards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete card %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCardNotFound
	}
	return nil
}

// ListActiveCards retrieves the active cards of one component kind in display order.
func (s *PostgresStore) ListActiveCards(ctx context.Context, kind ComponentKind) ([]*Card, error) {
	query := `SELECT ` + cardColumns + `
		FROM cards
		WHERE is_active = true AND component_kind = $1
		ORDER BY sequence ASC, id ASC`

	rows, err := s.db.Query(ctx, query, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list active cards: %w", err)
	}
	defer rows.Close()

	return collectCards(rows, 16)
}

// scanTargets returns the scan destinations in cardColumns order.
func scanTargets(c *Card) []any {
	return []any{
		&c.ID,
		&c.Name,
		&c.ComponentKind,
		&c.IsActive,
		&c.Sequence,
		&c.Icon,
		&c.StaticValue,
		&c.Subtitle,
		&c.Color,
		&c.TargetEntity,
		&c.CountField,
		&c.FilterExpr,
		&c.CalcKind,
		&c.Formula,
		&c.FacilitatorID,
		&c.SessionFilter,
		&c.FilterByCurrentUser,
		&c.CreatedAt,
		&c.UpdatedAt,
	}
}

func collectCards(rows pgx.Rows, sizeHint int) ([]*Card, error) {
	// Pre-allocate slice to avoid resizing allocations.
	cards := make([]*Card, 0, sizeHint)

	for rows.Next() {
		var c Card
		if err := rows.Scan(scanTargets(&c)...); err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards = append(cards, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return cards, nil
}
