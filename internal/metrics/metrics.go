// Package metrics centralizes the prometheus/client_golang collectors
// ambient across the webhook, outbox, scheduler, and cascade tiers
// (SPEC_FULL.md §6 ambient endpoints), exposed at GET /metrics via
// promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InboxDuplicates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "protectogram_inbox_duplicates_total",
		Help: "Inbound webhook deliveries discarded as duplicates, by provider.",
	}, []string{"provider"})

	InboxFresh = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "protectogram_inbox_fresh_total",
		Help: "Inbound webhook deliveries recorded as fresh, by provider.",
	}, []string{"provider"})

	OutboxSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "protectogram_outbox_sends_total",
		Help: "Outbox send attempts, by channel and outcome.",
	}, []string{"channel", "outcome"})

	SchedulerActionsClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "protectogram_scheduler_actions_claimed_total",
		Help: "Scheduled actions claimed for execution.",
	})

	SchedulerActionsRecovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "protectogram_scheduler_actions_recovered_total",
		Help: "Scheduled actions reset from running back to scheduled by the crash-recovery sweep.",
	})

	CascadeAlertsHalted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "protectogram_cascade_alerts_halted_total",
		Help: "Alerts halted after exhausting retries, by channel.",
	}, []string{"channel"})

	IncidentTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "protectogram_incident_transitions_total",
		Help: "Incident terminal transitions, by status.",
	}, []string{"status"})

	AdvisoryLockContention = promauto.NewCounter(prometheus.CounterOpts{
		Name: "protectogram_advisory_lock_contention_total",
		Help: "Advisory incident lock acquisitions that exhausted the retry window.",
	})
)
