package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "sakeperp_arbitrageur"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry                *prometheus.Registry
	cyclesRun               prometheus.Counter
	cyclesAborted           prometheus.Counter
	pairFailures            prometheus.Counter
	txSent                  prometheus.Counter
	txCancelled             prometheus.Counter
	cexOrdersPlaced         prometheus.Counter
	marginAdjustments       prometheus.Counter
	notificationsSent       prometheus.Counter
	notificationsSuppressed prometheus.Counter
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      name,
			Help:      help,
		})
	}

	cyclesRun := counter("cycles_run_total", "Total number of arbitrage cycles started.")
	cyclesAborted := counter("cycles_aborted_total", "Total number of cycles aborted by a preflight gate.")
	pairFailures := counter("pair_failures_total", "Total number of per-pair evaluation failures.")
	txSent := counter("tx_sent_total", "Total number of on-chain transactions submitted.")
	txCancelled := counter("tx_cancelled_total", "Total number of replacement cancellations submitted.")
	cexOrdersPlaced := counter("cex_orders_placed_total", "Total number of CEX orders placed.")
	marginAdjustments := counter("margin_adjustments_total", "Total number of margin add/remove operations.")
	notificationsSent := counter("notifications_sent_total", "Total number of operator notifications delivered.")
	notificationsSuppressed := counter("notifications_suppressed_total", "Total number of notifications dropped by throttling.")

	registry.MustRegister(cyclesRun, cyclesAborted, pairFailures, txSent, txCancelled,
		cexOrdersPlaced, marginAdjustments, notificationsSent, notificationsSuppressed)

	m := &Metrics{
		CyclesRun:               promCounter{cyclesRun},
		CyclesAborted:           promCounter{cyclesAborted},
		PairFailures:            promCounter{pairFailures},
		TxSent:                  promCounter{txSent},
		TxCancelled:             promCounter{txCancelled},
		CexOrdersPlaced:         promCounter{cexOrdersPlaced},
		MarginAdjustments:       promCounter{marginAdjustments},
		NotificationsSent:       promCounter{notificationsSent},
		NotificationsSuppressed: promCounter{notificationsSuppressed},
	}

	return &Prometheus{
		Metrics:                 m,
		registry:                registry,
		cyclesRun:               cyclesRun,
		cyclesAborted:           cyclesAborted,
		pairFailures:            pairFailures,
		txSent:                  txSent,
		txCancelled:             txCancelled,
		cexOrdersPlaced:         cexOrdersPlaced,
		marginAdjustments:       marginAdjustments,
		notificationsSent:       notificationsSent,
		notificationsSuppressed: notificationsSuppressed,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
