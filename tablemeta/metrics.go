package tablemeta

import "github.com/prometheus/client_golang/prometheus"

// metrics tracks the tri-state outcome distribution of mutating RPCs
// (§4.9-§4.11) plus lookup traffic, mirroring netio's ambient-stack
// posture for this package.
type metrics struct {
	rpcSuccess prometheus.Counter
	rpcMaybe   prometheus.Counter
	rpcFailure prometheus.Counter
	lookups    prometheus.Counter
}

func newMetrics(reg prometheus.Registerer, namespace string) *metrics {
	m := &metrics{
		rpcSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rpc_success_total",
			Help: "Mutating RPCs (create/drop/set_config) that returned success.",
		}),
		rpcMaybe: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rpc_maybe_total",
			Help: "Mutating RPCs that returned maybe (indeterminate under partial failure).",
		}),
		rpcFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rpc_failure_total",
			Help: "Mutating RPCs that returned failure (no reachable peer or leader).",
		}),
		lookups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "lookups_total",
			Help: "find/get_name/list_names calls served from the local directory mirror.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.rpcSuccess, m.rpcMaybe, m.rpcFailure, m.lookups)
	}
	return m
}

func noopMetrics() *metrics { return newMetrics(nil, "tablemeta_noop") }

func (m *metrics) recordResult(r Result) {
	switch r {
	case ResultSuccess:
		m.rpcSuccess.Inc()
	case ResultMaybe:
		m.rpcMaybe.Inc()
	case ResultFailure:
		m.rpcFailure.Inc()
	}
}
