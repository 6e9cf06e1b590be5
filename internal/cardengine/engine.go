// Package cardengine computes the display value of a dashboard card from its
// configuration, the current actor, and the registered entity accessors.
//
// Computation never fails upward. Every error degrades to a short tagged
// display string so one broken card cannot abort a dashboard refresh.
package cardengine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/inclue/pulse/internal/entity"
	"github.com/inclue/pulse/internal/expr"
	"github.com/inclue/pulse/internal/logger"
	"github.com/inclue/pulse/internal/observability"
	"github.com/inclue/pulse/internal/scope"
	"github.com/inclue/pulse/internal/store"
	"github.com/inclue/pulse/internal/validation"
)

// Field names on the participation entity used by the derived metrics.
const (
	fieldCompleted     = "is_completed"
	fieldSessionType   = "session_type"
	fieldEventID       = "event_id"
	fieldParticipantID = "participant_id"
	fieldFacilitatorID = "facilitator_id"

	sessionKickoff = "kickoff"
)

// Engine orchestrates filter evaluation, user scoping and entity queries to
// produce one scalar display value per card.
type Engine struct {
	registry *entity.Registry
	scopes   *scope.Resolver
	logger   *slog.Logger

	// now is injectable for deterministic tests.
	now func() time.Time
}

// New creates an Engine. The registry and resolver are mandatory collaborators.
func New(registry *entity.Registry, scopes *scope.Resolver, log *slog.Logger) *Engine {
	validation.AssertNotNil(registry, "entity registry")
	validation.AssertNotNil(scopes, "scope resolver")
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		registry: registry,
		scopes:   scopes,
		logger:   log,
		now:      time.Now,
	}
}

// ComputeDisplayValue computes the card's scalar display value for the given
// actor. It always returns a printable string: numeric renderings on success,
// one of the error tags otherwise. It is a pure function of the card config,
// the actor and the data snapshot, so repeated calls without intervening
// writes yield identical results.
func (e *Engine) ComputeDisplayValue(ctx context.Context, card *store.Card, actor scope.Actor) (result string) {
	log := logger.FromContext(ctx)

	// Last line of defense. A bug in a single card must render as a tag,
	// not take down the batch.
	defer func() {
		if r := recover(); r != nil {
			log.Error("card computation panicked",
				slog.Int64("card_id", card.ID),
				slog.Any("panic", r),
			)
			result = taggedMsg(tagGeneric, fmt.Sprint(r))
		}
		observability.CardComputations.WithLabelValues(string(card.CalcKind), outcomeFor(result)).Inc()
	}()

	// Derived participation metrics bypass the generic pipeline entirely.
	switch card.CalcKind {
	case store.CalcCompletionRate:
		return e.completionRate(ctx, card, actor)
	case store.CalcFacilitatorPerformance:
		return e.facilitatorPerformance(ctx, card, actor)
	}

	if card.TargetEntity == "" {
		return staticOrZero(card)
	}

	accessor, ok := e.registry.Get(card.TargetEntity)
	if !ok {
		log.Warn("card references unknown entity type",
			slog.Int64("card_id", card.ID),
			slog.String("entity", card.TargetEntity),
		)
		return TagModelNotFound
	}

	predicate, err := e.basePredicate(card, actor)
	if err != nil {
		// Generic kinds fail loudly on a broken filter. The derived
		// metrics below instead log and continue without it.
		log.Warn("card filter rejected",
			slog.Int64("card_id", card.ID),
			slog.String("error", err.Error()),
		)
		return tagged(tagDomain, err)
	}

	if card.FilterByCurrentUser {
		if clause := e.scopes.Resolve(card.TargetEntity, actor); clause != nil {
			predicate = predicate.And(*clause)
		}
	}

	switch card.CalcKind {
	case store.CalcCount:
		n, err := accessor.Count(ctx, predicate)
		if err != nil {
			return tagged(tagGeneric, err)
		}
		return strconv.Itoa(n)

	case store.CalcSum, store.CalcAvg:
		if card.CountField == "" {
			return staticOrZero(card)
		}
		return e.aggregateField(ctx, accessor, card, predicate)

	case store.CalcFormula:
		if card.Formula == "" {
			return staticOrZero(card)
		}
		return e.evalFormula(ctx, accessor, card, actor, predicate)
	}

	return staticOrZero(card)
}

// basePredicate evaluates the card's filter expression with the standard
// name table. An empty expression yields the match-all predicate.
func (e *Engine) basePredicate(card *store.Card, actor scope.Actor) (expr.Predicate, error) {
	if expr.IsEmptyFilter(card.FilterExpr) {
		return nil, nil
	}
	return expr.ParseFilter(card.FilterExpr, e.names(actor))
}

// names builds the variable table exposed to card expressions.
func (e *Engine) names(actor scope.Actor) expr.NameTable {
	now := e.now().UTC()
	return expr.NameTable{
		"today": now.Format("2006-01-02"),
		"now":   now.Format(time.RFC3339),
		"uid":   actor.UserID,
		"user":  actor.PersonID,
	}
}

// aggregateField handles sum and avg over the card's count field.
func (e *Engine) aggregateField(ctx context.Context, accessor entity.Accessor, card *store.Card, predicate expr.Predicate) string {
	records, err := accessor.Fetch(ctx, predicate)
	if err != nil {
		return tagged(tagGeneric, err)
	}
	if len(records) == 0 {
		return "0"
	}

	values, err := records.Mapped(card.CountField)
	if err != nil {
		return tagged(tagField, err)
	}

	var total float64
	for _, v := range values {
		f, ok := numeric(v)
		if !ok {
			return taggedMsg(tagField, fmt.Sprintf("field %q is not numeric", card.CountField))
		}
		total += f
	}

	if card.CalcKind == store.CalcSum {
		return formatNumber(total)
	}
	return formatNumber(expr.Round(total/float64(len(values)), 1))
}

// evalFormula handles the formula kind: fetch matching records, bind them as
// "records" and evaluate the card's formula expression.
func (e *Engine) evalFormula(ctx context.Context, accessor entity.Accessor, card *store.Card, actor scope.Actor, predicate expr.Predicate) string {
	records, err := accessor.Fetch(ctx, predicate)
	if err != nil {
		return tagged(tagGeneric, err)
	}
	if len(records) == 0 {
		return "0"
	}

	value, err := expr.EvalFormula(card.Formula, records, e.names(actor))
	if err != nil {
		return tagged(tagFormula, err)
	}
	return formatValue(value)
}

// completionRate computes completed/total over participation records,
// rendered as a whole percentage.
func (e *Engine) completionRate(ctx context.Context, card *store.Card, actor scope.Actor) string {
	records, res := e.participationRecords(ctx, card, actor, true)
	if res != "" {
		return res
	}
	if len(records) == 0 {
		return "0%"
	}
	return percentage(completedCount(records), len(records))
}

// facilitatorPerformance computes a facilitator-centric participation metric
// selected by the card's count field.
func (e *Engine) facilitatorPerformance(ctx context.Context, card *store.Card, actor scope.Actor) string {
	records, res := e.participationRecords(ctx, card, actor, false)
	if res != "" {
		return res
	}
	if len(records) == 0 {
		return "0"
	}

	switch card.CountField {
	case "participants":
		return strconv.Itoa(records.Distinct(fieldParticipantID))
	case "completion_rate":
		return percentage(completedCount(records), len(records))
	case "events":
		return strconv.Itoa(records.Distinct(fieldEventID))
	default:
		// Unset or unrecognized selectors fall back to the session count.
		return strconv.Itoa(records.Distinct(fieldEventID))
	}
}

// participationRecords fetches the participation records in scope for one of
// the derived metrics. A non-empty second return value is a terminal display
// tag the caller must return as-is.
//
// Unlike the generic pipeline, a broken base filter here is logged and
// dropped rather than surfaced, so a stale expression degrades the metric to
// its unfiltered form instead of breaking it.
func (e *Engine) participationRecords(ctx context.Context, card *store.Card, actor scope.Actor, withSession bool) (entity.RecordSet, string) {
	log := logger.FromContext(ctx)

	accessor, ok := e.registry.Get(scope.EntityParticipation)
	if !ok {
		log.Warn("participation entity type not registered",
			slog.Int64("card_id", card.ID),
		)
		return nil, TagModelNotFound
	}

	predicate, err := e.basePredicate(card, actor)
	if err != nil {
		log.Warn("card filter rejected, continuing unfiltered",
			slog.Int64("card_id", card.ID),
			slog.String("error", err.Error()),
		)
		predicate = nil
	}

	if withSession {
		// Completion rate honors the facilitator reference and the actor
		// scope independently.
		if card.FacilitatorID != 0 {
			predicate = predicate.And(expr.Condition{Field: fieldFacilitatorID, Op: "=", Value: card.FacilitatorID})
		}
		switch card.SessionFilter {
		case store.SessionKickoff:
			predicate = predicate.And(expr.Condition{Field: fieldSessionType, Op: "=", Value: sessionKickoff})
		case store.SessionFollowup:
			predicate = predicate.And(expr.Condition{Field: fieldSessionType, Op: "!=", Value: sessionKickoff})
		}
		if card.FilterByCurrentUser && actor.IsFacilitator {
			predicate = predicate.And(expr.Condition{Field: fieldFacilitatorID, Op: "=", Value: actor.PersonID})
		}
	} else {
		// Performance metrics take the configured facilitator over the
		// actor when both apply.
		switch {
		case card.FacilitatorID != 0:
			predicate = predicate.And(expr.Condition{Field: fieldFacilitatorID, Op: "=", Value: card.FacilitatorID})
		case card.FilterByCurrentUser && actor.IsFacilitator:
			predicate = predicate.And(expr.Condition{Field: fieldFacilitatorID, Op: "=", Value: actor.PersonID})
		}
	}

	records, err := accessor.Fetch(ctx, predicate)
	if err != nil {
		return nil, tagged(tagGeneric, err)
	}
	return records, ""
}

func completedCount(records entity.RecordSet) int {
	return len(records.Where(func(r entity.Record) bool {
		return truthy(r[fieldCompleted])
	}))
}

// percentage renders completed/total as a whole-number percent with
// round-half-away-from-zero rounding.
func percentage(completed, total int) string {
	rate := int(math.Round(100 * float64(completed) / float64(total)))
	return strconv.Itoa(rate) + "%"
}

func staticOrZero(card *store.Card) string {
	if card.StaticValue != "" {
		return card.StaticValue
	}
	return "0"
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int:
		return t != 0
	case int32:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t == "true" || t == "t" || t == "1"
	default:
		return false
	}
}

func numeric(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

// formatValue renders a formula result for display.
func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return formatNumber(t)
	default:
		return fmt.Sprint(t)
	}
}

// formatNumber trims trailing zeros so whole results read as integers.
func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
