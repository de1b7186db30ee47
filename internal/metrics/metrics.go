// Package metrics collects the process's operational counters into a
// prometheus registry. It never serves HTTP itself; Torii (out of scope
// here) is responsible for exposing /metrics, the way the rest of this
// module treats every outward-facing surface as an external collaborator.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups every counter/gauge/histogram the replication engine
// updates. Zero value is unusable; construct with New.
type Metrics struct {
	Registry *prometheus.Registry

	TxsAccepted prometheus.Counter
	TxsRejected *prometheus.CounterVec // labeled by xerrors.Kind string
	QueueSize   prometheus.Gauge

	ViewChanges      *prometheus.CounterVec // labeled by reason
	CommitLatency    prometheus.Histogram
	BlockHeight      prometheus.Gauge
	BlockSyncLag     prometheus.Gauge // local height below the highest announced peer height

	PeersConnected prometheus.Gauge
}

// New registers every metric against a fresh registry. Callers that want
// process/Go runtime collectors too (as the teacher's own metrics stack
// exposes) can register prometheus.NewGoCollector()/NewProcessCollector()
// against the same Registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		TxsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "iroha",
			Subsystem: "txqueue",
			Name:      "txs_accepted_total",
			Help:      "Transactions admitted to the queue.",
		}),
		TxsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iroha",
			Subsystem: "txqueue",
			Name:      "txs_rejected_total",
			Help:      "Transactions rejected at admission, by error kind.",
		}, []string{"kind"}),
		QueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "iroha",
			Subsystem: "txqueue",
			Name:      "queue_size",
			Help:      "Transactions currently held in the queue.",
		}),
		ViewChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iroha",
			Subsystem: "sumeragi",
			Name:      "view_changes_total",
			Help:      "View changes raised, by reason.",
		}, []string{"reason"}),
		CommitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "iroha",
			Subsystem: "sumeragi",
			Name:      "commit_latency_seconds",
			Help:      "Time from proposal to local commit.",
			Buckets:   prometheus.DefBuckets,
		}),
		BlockHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "iroha",
			Subsystem: "kura",
			Name:      "block_height",
			Help:      "Height of the local top block.",
		}),
		BlockSyncLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "iroha",
			Subsystem: "blocksync",
			Name:      "lag_blocks",
			Help:      "Blocks behind the highest height announced by a peer.",
		}),
		PeersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "iroha",
			Subsystem: "p2p",
			Name:      "peers_connected",
			Help:      "Currently connected peers.",
		}),
	}

	reg.MustRegister(
		m.TxsAccepted, m.TxsRejected, m.QueueSize,
		m.ViewChanges, m.CommitLatency, m.BlockHeight, m.BlockSyncLag,
		m.PeersConnected,
	)
	return m
}
