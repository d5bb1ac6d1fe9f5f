package observability

import (
	"context"

	"github.com/aretw0/formweave/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "formweave"

// Metrics holds the engine collectors.
type Metrics struct {
	RuleMatches         *prometheus.CounterVec
	DefaultTargets      prometheus.Counter
	NoTarget            prometheus.Counter
	MalformedConditions prometheus.Counter
	GenerationFailures  prometheus.Counter
	GenerationDuration  prometheus.Histogram
	TurnsSubmitted      prometheus.Counter
	Advances            prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil reg skips registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RuleMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_matches_total",
			Help:      "Rules that resolved a next block, by connection.",
		}, []string{"connection_id"}),
		DefaultTargets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "default_targets_total",
			Help:      "Resolutions that fell through to the connection default target.",
		}),
		NoTarget: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "no_target_total",
			Help:      "Resolutions that found neither a matching rule nor a default target.",
		}),
		MalformedConditions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_conditions_total",
			Help:      "Conditions or expressions that could not be evaluated.",
		}),
		GenerationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_failures_total",
			Help:      "Question generations replaced by a fallback question.",
		}),
		GenerationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Latency of question generator calls.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		TurnsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_submitted_total",
			Help:      "Answers recorded in AI conversations, edits included.",
		}),
		Advances: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_advances_total",
			Help:      "Conversations that signalled the form to move on.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.collectors()...)
	}
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RuleMatches,
		m.DefaultTargets,
		m.NoTarget,
		m.MalformedConditions,
		m.GenerationFailures,
		m.GenerationDuration,
		m.TurnsSubmitted,
		m.Advances,
	}
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRouted: func(_ context.Context, e *domain.RoutingEvent) {
			switch e.Type {
			case domain.EventRuleMatched:
				m.RuleMatches.WithLabelValues(e.ConnectionID).Inc()
			case domain.EventDefaultTarget:
				m.DefaultTargets.Inc()
			case domain.EventNoTarget:
				m.NoTarget.Inc()
			}
		},
		OnMalformedCondition: func(context.Context, *domain.ConditionEvent) {
			m.MalformedConditions.Inc()
		},
		OnTurnSubmitted: func(context.Context, *domain.ConversationEvent) {
			m.TurnsSubmitted.Inc()
		},
		OnGenerated: func(_ context.Context, e *domain.ConversationEvent) {
			m.GenerationDuration.Observe(e.Duration.Seconds())
		},
		OnGenerationFailed: func(_ context.Context, e *domain.ConversationEvent) {
			m.GenerationFailures.Inc()
			m.GenerationDuration.Observe(e.Duration.Seconds())
		},
		OnAdvance: func(context.Context, *domain.ConversationEvent) {
			m.Advances.Inc()
		},
	}
}
