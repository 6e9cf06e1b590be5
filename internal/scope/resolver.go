// Package scope derives per-actor filter clauses for dashboard cards that
// restrict results to data the current user owns or participates in.
package scope

import (
	"log/slog"

	"github.com/inclue/pulse/internal/entity"
	"github.com/inclue/pulse/internal/expr"
)

// Actor identifies the user a computation runs on behalf of.
// It arrives pre-authenticated from the gateway; this package never verifies it.
type Actor struct {
	// UserID is the login account identifier.
	UserID int64
	// PersonID is the directory/person record behind the account
	// (facilitators and participants are persons, not accounts).
	PersonID int64
	// IsFacilitator marks the actor as a session facilitator.
	IsFacilitator bool
}

// Entity type names with dedicated scoping policies.
const (
	EntityParticipation = "participation"
	EntityEvent         = "event"
)

// scopeFields is the probe order for entity types without a dedicated policy.
// The first field present on the entity wins.
var scopeFields = []string{"owner_user_id", "facilitator_id", "participant_id", "created_by"}

// Resolver maps (entity type, actor) to a scoping clause using a fixed
// policy table.
type Resolver struct {
	registry *entity.Registry
	logger   *slog.Logger
}

// NewResolver creates a Resolver. A nil logger falls back to slog.Default().
func NewResolver(registry *entity.Registry, logger *slog.Logger) *Resolver {
	if registry == nil {
		panic("scope: entity registry cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{registry: registry, logger: logger}
}

// Resolve returns the clause restricting entityName's records to the actor,
// or nil when the entity carries no recognizable ownership field. The nil
// case is a silent no-op for callers: it is logged here, never surfaced.
//
// The returned clause is ANDed onto the card's base predicate by the caller;
// it never replaces it.
func (r *Resolver) Resolve(entityName string, actor Actor) *expr.Condition {
	switch entityName {
	case EntityParticipation:
		if actor.IsFacilitator {
			return &expr.Condition{Field: "facilitator_id", Op: "=", Value: actor.PersonID}
		}
		return &expr.Condition{Field: "participant_id", Op: "=", Value: actor.PersonID}

	case EntityEvent:
		if actor.IsFacilitator {
			return &expr.Condition{Field: "facilitator_id", Op: "=", Value: actor.PersonID}
		}
		return &expr.Condition{Field: "created_by", Op: "=", Value: actor.UserID}
	}

	accessor, ok := r.registry.Get(entityName)
	if !ok {
		return nil
	}

	fields := accessor.FieldNames()
	for _, field := range scopeFields {
		if _, present := fields[field]; !present {
			continue
		}
		value := actor.PersonID
		if field == "owner_user_id" || field == "created_by" {
			value = actor.UserID
		}
		return &expr.Condition{Field: field, Op: "=", Value: value}
	}

	r.logger.Warn("no suitable field for user scoping",
		slog.String("entity", entityName),
		slog.Int64("user_id", actor.UserID),
	)
	return nil
}
