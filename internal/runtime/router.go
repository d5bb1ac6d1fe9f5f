package runtime

import (
	"context"
	"time"

	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/formweave/pkg/ports"
)

// Router is the branching rule engine. It holds no state besides its compiled expression
// cache and is safe for concurrent use.
type Router struct {
	opts  options
	exprs *expressionCache
}

// NewRouter creates a router.
func NewRouter(opts ...Option) *Router {
	return &Router{
		opts:  newOptions(opts),
		exprs: newExpressionCache(),
	}
}

var defaultRouter = NewRouter()

// ResolveNextBlock picks the next block after the source of conn using a silent router.
func ResolveNextBlock(conn *domain.Connection, answers ports.AnswerResolver) (string, error) {
	return defaultRouter.ResolveNextBlock(context.Background(), conn, answers)
}

// EvaluateConditionGroup combines the conditions of group using a silent router.
func EvaluateConditionGroup(group domain.ConditionGroup, answers ports.AnswerResolver) bool {
	return defaultRouter.EvaluateConditionGroup(context.Background(), group, answers)
}

// EvaluateSingleCondition evaluates one condition using a silent router.
func EvaluateSingleCondition(cond domain.ConditionRule, answers ports.AnswerResolver) bool {
	return defaultRouter.EvaluateSingleCondition(context.Background(), cond, answers)
}

// ResolveNextBlock evaluates the rules of conn in order and returns the target of the first
// one that matches, or the default target when none does.
// Returns domain.ErrNoTargetResolved when nothing matched and no default target is set.
func (r *Router) ResolveNextBlock(ctx context.Context, conn *domain.Connection, answers ports.AnswerResolver) (string, error) {
	if conn == nil {
		return "", domain.ErrNoTargetResolved
	}

	event := &domain.RoutingEvent{
		EventBase:     domain.EventBase{Timestamp: time.Now(), Type: domain.EventDefaultTarget},
		ConnectionID:  conn.ID,
		SourceBlockID: conn.SourceBlockID,
	}

	// Priority 1: rules, first match wins
	for i := range conn.Rules {
		rule := &conn.Rules[i]
		if r.matches(ctx, conn, rule, answers) {
			r.opts.logger.Debug("rule matched",
				"connection_id", conn.ID, "rule_id", rule.ID, "block_id", rule.TargetBlockID)
			event.Type = domain.EventRuleMatched
			event.RuleID = rule.ID
			event.TargetBlockID = rule.TargetBlockID
			r.emitRouted(ctx, event)
			return rule.TargetBlockID, nil
		}
	}

	// Priority 2: default target
	if conn.DefaultTargetID != "" {
		event.TargetBlockID = conn.DefaultTargetID
		r.emitRouted(ctx, event)
		return conn.DefaultTargetID, nil
	}

	r.opts.logger.Debug("no target resolved", "connection_id", conn.ID, "block_id", conn.SourceBlockID)
	event.Type = domain.EventNoTarget
	r.emitRouted(ctx, event)
	return "", domain.ErrNoTargetResolved
}

func (r *Router) matches(ctx context.Context, conn *domain.Connection, rule *domain.Rule, answers ports.AnswerResolver) bool {
	if rule.Expression != "" {
		ok, err := r.exprs.evaluate(rule.Expression, answers)
		if err != nil {
			r.reportMalformed(ctx, conn.ID, rule.ID, err)
			return false
		}
		return ok
	}

	ok, errs := evaluateGroup(rule.Conditions, answers)
	for _, err := range errs {
		r.reportMalformed(ctx, conn.ID, rule.ID, err)
	}
	return ok
}

// EvaluateConditionGroup combines the conditions with AND (all true) or OR (any true).
// An empty group is false.
func (r *Router) EvaluateConditionGroup(ctx context.Context, group domain.ConditionGroup, answers ports.AnswerResolver) bool {
	ok, errs := evaluateGroup(group, answers)
	for _, err := range errs {
		r.reportMalformed(ctx, "", "", err)
	}
	return ok
}

// EvaluateSingleCondition reports whether the answer referenced by cond satisfies it.
// A missing answer never satisfies a condition. Malformed conditions are false.
func (r *Router) EvaluateSingleCondition(ctx context.Context, cond domain.ConditionRule, answers ports.AnswerResolver) bool {
	ok, err := evaluateCondition(cond, answers)
	if err != nil {
		r.reportMalformed(ctx, "", "", err)
		return false
	}
	return ok
}

func evaluateGroup(group domain.ConditionGroup, answers ports.AnswerResolver) (bool, []error) {
	if len(group.Conditions) == 0 {
		return false, nil
	}

	var errs []error
	anyTrue := false
	allTrue := true
	for _, cond := range group.Conditions {
		ok, err := evaluateCondition(cond, answers)
		if err != nil {
			errs = append(errs, err)
			ok = false
		}
		anyTrue = anyTrue || ok
		allTrue = allTrue && ok
	}

	if group.LogicalOperator == domain.LogicOr {
		return anyTrue, errs
	}
	if group.LogicalOperator != domain.LogicAnd && group.LogicalOperator != "" {
		errs = append(errs, &domain.MalformedConditionError{Reason: "unknown logical operator " + string(group.LogicalOperator)})
		return false, errs
	}
	return allTrue, errs
}

func (r *Router) reportMalformed(ctx context.Context, connID, ruleID string, err error) {
	attrs := []any{"err", err}
	if connID != "" {
		attrs = append(attrs, "connection_id", connID, "rule_id", ruleID)
	}
	r.opts.logger.Warn("malformed condition evaluated as false", attrs...)

	if r.opts.hooks.OnMalformedCondition != nil {
		r.opts.hooks.OnMalformedCondition(ctx, &domain.ConditionEvent{
			EventBase:    domain.EventBase{Timestamp: time.Now(), Type: domain.EventMalformedCondition},
			ConnectionID: connID,
			RuleID:       ruleID,
			Err:          err,
		})
	}
}

func (r *Router) emitRouted(ctx context.Context, event *domain.RoutingEvent) {
	if r.opts.hooks.OnRouted != nil {
		r.opts.hooks.OnRouted(ctx, event)
	}
}
