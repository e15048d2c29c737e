// Package metrics counts the engine's externally visible actions.
package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	CyclesRun               Counter
	CyclesAborted           Counter
	PairFailures            Counter
	TxSent                  Counter
	TxCancelled             Counter
	CexOrdersPlaced         Counter
	MarginAdjustments       Counter
	NotificationsSent       Counter
	NotificationsSuppressed Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		CyclesRun:               n,
		CyclesAborted:           n,
		PairFailures:            n,
		TxSent:                  n,
		TxCancelled:             n,
		CexOrdersPlaced:         n,
		MarginAdjustments:       n,
		NotificationsSent:       n,
		NotificationsSuppressed: n,
	}
}
