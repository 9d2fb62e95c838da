package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for identity operations.
type Metrics struct {
	IdentitiesCreated     prometheus.Counter
	IdentitiesVerified    prometheus.Counter
	ReferralCodeRetries   prometheus.Counter
	RegistrationRollbacks prometheus.Counter
}

// New registers and returns identity metrics collectors.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		IdentitiesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "spothot_identities_created_total",
			Help: "Total number of identities created",
		}),
		IdentitiesVerified: factory.NewCounter(prometheus.CounterOpts{
			Name: "spothot_identities_verified_total",
			Help: "Total number of identities marked verified",
		}),
		ReferralCodeRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "spothot_referral_code_retries_total",
			Help: "Total number of referral code generation retries after collisions",
		}),
		RegistrationRollbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "spothot_registration_rollbacks_total",
			Help: "Total number of registrations rolled back over an invalid referral code",
		}),
	}
}

func (m *Metrics) IncrementIdentitiesCreated() {
	m.IdentitiesCreated.Inc()
}

func (m *Metrics) IncrementIdentitiesVerified() {
	m.IdentitiesVerified.Inc()
}

func (m *Metrics) IncrementReferralCodeRetries() {
	m.ReferralCodeRetries.Inc()
}

func (m *Metrics) IncrementRegistrationRollbacks() {
	m.RegistrationRollbacks.Inc()
}
