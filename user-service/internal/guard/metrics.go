package guard

import "github.com/prometheus/client_golang/prometheus"

const (
	opGrantRole  = "grant_role"
	opAddToGroup = "add_to_group"
	opMerge      = "merge"
)

// Metrics counts guard decisions. A nil *Metrics records nothing.
type Metrics struct {
	disabledTotal *prometheus.CounterVec
	revokedTotal  *prometheus.CounterVec
	rejectedTotal *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		disabledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dataverse",
			Subsystem: "guard",
			Name:      "users_disabled_total",
			Help:      "Accounts transitioned to disabled.",
		}, nil),
		revokedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dataverse",
			Subsystem: "guard",
			Name:      "cascade_revoked_total",
			Help:      "Authorization artifacts removed by the disable cascade.",
		}, []string{"kind"}),
		rejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dataverse",
			Subsystem: "guard",
			Name:      "rejected_total",
			Help:      "Operations refused because of account enablement.",
		}, []string{"operation"}),
	}
	reg.MustRegister(m.disabledTotal, m.revokedTotal, m.rejectedTotal)
	return m
}

func (m *Metrics) disabled() {
	if m == nil {
		return
	}
	m.disabledTotal.WithLabelValues().Inc()
}

func (m *Metrics) cascaded(roles, memberships int64) {
	if m == nil {
		return
	}
	m.revokedTotal.WithLabelValues("role_assignment").Add(float64(roles))
	m.revokedTotal.WithLabelValues("group_membership").Add(float64(memberships))
}

func (m *Metrics) rejected(operation string) {
	if m == nil {
		return
	}
	m.rejectedTotal.WithLabelValues(operation).Inc()
}
