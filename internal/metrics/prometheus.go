package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "delta_hedge_bot"

type Prometheus struct {
	Metrics *Metrics

	registry       *prometheus.Registry
	cyclesRun      prometheus.Counter
	cyclesFailed   prometheus.Counter
	hedgesSkipped  prometheus.Counter
	ordersPlaced   prometheus.Counter
	ordersFailed   prometheus.Counter
	ordersFilled   prometheus.Counter
	fillTimeouts   prometheus.Counter
	preHedgeDelta  prometheus.Gauge
	postHedgeDelta prometheus.Gauge
	lastCycle      prometheus.Gauge
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
}

func newGauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry:       prometheus.NewRegistry(),
		cyclesRun:      newCounter("cycles_total", "Total number of hedge cycles started."),
		cyclesFailed:   newCounter("cycles_failed_total", "Total number of hedge cycles aborted by an error."),
		hedgesSkipped:  newCounter("hedges_skipped_total", "Total number of cycles where the rounded delta was zero."),
		ordersPlaced:   newCounter("orders_placed_total", "Total number of hedge orders accepted by the exchange."),
		ordersFailed:   newCounter("orders_failed_total", "Total number of hedge orders rejected or closed unfilled."),
		ordersFilled:   newCounter("orders_filled_total", "Total number of hedge orders observed as filled."),
		fillTimeouts:   newCounter("fill_timeouts_total", "Total number of hedge orders that did not fill within the poll budget."),
		preHedgeDelta:  newGauge("pre_hedge_delta", "Option portfolio delta observed before hedging."),
		postHedgeDelta: newGauge("post_hedge_delta", "Option portfolio delta observed after the hedge filled."),
		lastCycle:      newGauge("last_cycle_timestamp_seconds", "Unix time of the last completed hedge cycle."),
	}
	p.registry.MustRegister(
		p.cyclesRun, p.cyclesFailed, p.hedgesSkipped,
		p.ordersPlaced, p.ordersFailed, p.ordersFilled, p.fillTimeouts,
		p.preHedgeDelta, p.postHedgeDelta, p.lastCycle,
	)
	p.Metrics = &Metrics{
		CyclesRun:      p.cyclesRun,
		CyclesFailed:   p.cyclesFailed,
		HedgesSkipped:  p.hedgesSkipped,
		OrdersPlaced:   p.ordersPlaced,
		OrdersFailed:   p.ordersFailed,
		OrdersFilled:   p.ordersFilled,
		FillTimeouts:   p.fillTimeouts,
		PreHedgeDelta:  p.preHedgeDelta,
		PostHedgeDelta: p.postHedgeDelta,
		LastCycleUnix:  p.lastCycle,
	}
	return p
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
