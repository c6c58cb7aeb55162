package metrics

type Counter interface {
	Inc()
}

type Gauge interface {
	Set(float64)
}

type Metrics struct {
	CyclesRun     Counter
	CyclesFailed  Counter
	HedgesSkipped Counter
	OrdersPlaced  Counter
	OrdersFailed  Counter
	OrdersFilled  Counter
	FillTimeouts  Counter

	// Delta readings are exported for dashboards only; decisions never read them back.
	PreHedgeDelta  Gauge
	PostHedgeDelta Gauge
	LastCycleUnix  Gauge
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}

func NewNoop() *Metrics {
	n := noopCounter{}
	g := noopGauge{}
	return &Metrics{
		CyclesRun:      n,
		CyclesFailed:   n,
		HedgesSkipped:  n,
		OrdersPlaced:   n,
		OrdersFailed:   n,
		OrdersFilled:   n,
		FillTimeouts:   n,
		PreHedgeDelta:  g,
		PostHedgeDelta: g,
		LastCycleUnix:  g,
	}
}
