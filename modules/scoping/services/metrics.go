package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/domain/types"
)

// WorkflowMetrics counts decision writes, version transitions and autosave
// recoveries. A nil receiver is a no-op recorder, so wiring it is optional.
type WorkflowMetrics struct {
	decisionWrites   *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	autoApprovals    prometheus.Counter
	autosaveRetries  prometheus.Counter
	autosaveFailures prometheus.Counter
}

func NewWorkflowMetrics(reg prometheus.Registerer) *WorkflowMetrics {
	factory := promauto.With(reg)
	return &WorkflowMetrics{
		decisionWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scoping_decision_writes_total",
			Help: "Tester and report-owner decision writes by party.",
		}, []string{"party"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scoping_version_transitions_total",
			Help: "Version status transitions by target status and outcome.",
		}, []string{"to", "outcome"}),
		autoApprovals: factory.NewCounter(prometheus.CounterOpts{
			Name: "scoping_auto_approvals_total",
			Help: "Versions approved automatically on full agreement.",
		}),
		autosaveRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "scoping_autosave_retries_total",
			Help: "Autosave commits that needed the retry attempt.",
		}),
		autosaveFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "scoping_autosave_failures_total",
			Help: "Autosave commits that failed both attempts and were marked unsaved.",
		}),
	}
}

func (m *WorkflowMetrics) decisionWrite(party string) {
	if m == nil {
		return
	}
	m.decisionWrites.WithLabelValues(party).Inc()
}

func (m *WorkflowMetrics) transition(to types.VersionStatus, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.transitions.WithLabelValues(string(to), outcome).Inc()
}

func (m *WorkflowMetrics) autoApproval() {
	if m == nil {
		return
	}
	m.autoApprovals.Inc()
}

func (m *WorkflowMetrics) autosaveRetry() {
	if m == nil {
		return
	}
	m.autosaveRetries.Inc()
}

func (m *WorkflowMetrics) autosaveFailure() {
	if m == nil {
		return
	}
	m.autosaveFailures.Inc()
}
