package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Upgrade metrics
	MemberUpgradesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultmgmt_member_upgrades_total",
			Help: "Total number of members driven through the upgrade procedure",
		},
	)

	MemberDeletesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultmgmt_member_deletes_total",
			Help: "Total number of member pods deleted for recreation",
		},
	)

	StepDownsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultmgmt_step_downs_total",
			Help: "Total number of step-down requests sent to active members",
		},
	)

	// Engine API metrics
	UnsealRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultmgmt_unseal_requests_total",
			Help: "Total number of unseal key submissions",
		},
	)

	SealStatusPollsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultmgmt_seal_status_polls_total",
			Help: "Total number of seal-status requests",
		},
	)
)

func init() {
	prometheus.MustRegister(MemberUpgradesTotal)
	prometheus.MustRegister(MemberDeletesTotal)
	prometheus.MustRegister(StepDownsTotal)
	prometheus.MustRegister(UnsealRequestsTotal)
	prometheus.MustRegister(SealStatusPollsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr for the lifetime of the process. Long rolling
// upgrades can be observed by scraping this endpoint.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}
