package coordination

import "github.com/prometheus/client_golang/prometheus"

// metrics collects the Prometheus series the coordination layer exposes:
// the auth funnel (challenges issued, authentications, revocations),
// reorgs and rollback-cap evictions observed via engine events, and the
// current WebSocket fanout size.
type metrics struct {
	challengesIssued  prometheus.Counter
	authentications   prometheus.Counter
	revocations       prometheus.Counter
	reorgsObserved    prometheus.Counter
	rollbackEvictions prometheus.Counter
	wsClients         prometheus.GaugeFunc
	requestDuration   *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer, hub *Hub) *metrics {
	m := &metrics{
		challengesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_episode_challenges_issued_total",
			Help: "Number of RequestChallenge commands the engine has applied.",
		}),
		authentications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_episode_authentications_total",
			Help: "Number of SubmitResponse commands that reached Authenticated.",
		}),
		revocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_episode_revocations_total",
			Help: "Number of RevokeSession commands the engine has applied.",
		}),
		reorgsObserved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_episode_reorgs_total",
			Help: "Number of reorg events the listener has forwarded to the engine.",
		}),
		rollbackEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_episode_rollback_evictions_total",
			Help: "Number of episodes evicted for exceeding their rollback stack cap.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "auth_episode_http_request_duration_seconds",
			Help: "HTTP handler latency by route, including time spent waiting for ledger confirmation.",
		}, []string{"route"}),
	}
	m.wsClients = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "auth_episode_ws_clients",
		Help: "Number of currently connected WebSocket subscribers.",
	}, func() float64 { return float64(hub.Count()) })

	reg.MustRegister(m.challengesIssued, m.authentications, m.revocations,
		m.reorgsObserved, m.rollbackEvictions, m.requestDuration, m.wsClients)
	return m
}
