package pledge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type ledgerMetrics struct {
	commits    *prometheus.CounterVec
	aborts     *prometheus.CounterVec
	transfers  prometheus.Counter
	valueMoved prometheus.Counter
	pledges    prometheus.Gauge
	admins     prometheus.Gauge
	seq        prometheus.Gauge
}

func newLedgerMetrics(promRegistry prometheus.Registerer) *ledgerMetrics {
	promautoFactory := promauto.With(promRegistry)
	return &ledgerMetrics{
		commits: promautoFactory.NewCounterVec(prometheus.CounterOpts{
			Name: "pledgeflow_transactions_committed_total",
			Help: "committed ledger transactions by operation",
		}, []string{"op"}),
		aborts: promautoFactory.NewCounterVec(prometheus.CounterOpts{
			Name: "pledgeflow_transactions_aborted_total",
			Help: "rolled back ledger transactions by operation and error code",
		}, []string{"op", "code"}),
		transfers: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "pledgeflow_transfers_total",
			Help: "committed value movements between pledges",
		}),
		valueMoved: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "pledgeflow_value_moved_total",
			Help: "sum of committed value movements",
		}),
		pledges: promautoFactory.NewGauge(prometheus.GaugeOpts{
			Name: "pledgeflow_pledges",
			Help: "number of interned pledges",
		}),
		admins: promautoFactory.NewGauge(prometheus.GaugeOpts{
			Name: "pledgeflow_admins",
			Help: "number of registered admins",
		}),
		seq: promautoFactory.NewGauge(prometheus.GaugeOpts{
			Name: "pledgeflow_commit_seq",
			Help: "sequence number of the last committed transaction",
		}),
	}
}

func (m *ledgerMetrics) committed(cs Changeset, pledges, admins int) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(cs.Op).Inc()
	for _, ev := range cs.Events {
		if ev.Kind == EventTransfer && ev.From != 0 {
			m.transfers.Inc()
			m.valueMoved.Add(float64(ev.Amount))
		}
	}
	m.pledges.Set(float64(pledges))
	m.admins.Set(float64(admins))
	m.seq.Set(float64(cs.Seq))
}

func (m *ledgerMetrics) aborted(op string, code ErrorCode) {
	if m == nil {
		return
	}
	if code == "" {
		code = "EXTERNAL"
	}
	m.aborts.WithLabelValues(op, string(code)).Inc()
}
