package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for gateway calls.
const (
	OutcomeOK          = "ok"
	OutcomeRejected    = "rejected"
	OutcomeTransport   = "transport_error"
	OutcomeUndecodable = "undecodable"
)

// Collector groups the client's prometheus instruments. A nil *Collector is
// valid and records nothing.
type Collector struct {
	requests      *prometheus.CounterVec
	ticks         prometheus.Counter
	staleBalances *prometheus.CounterVec
	transfers     *prometheus.CounterVec
}

// NewCollector builds the instruments and registers them on reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "walletsync_gateway_requests_total",
			Help: "ledger calls by operation and outcome",
		}, []string{"operation", "outcome"}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "walletsync_poll_ticks_total",
			Help: "refresh cycles fired by the poll scheduler",
		}),
		staleBalances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "walletsync_balance_writes_discarded_total",
			Help: "balance responses dropped because a newer one was applied or the session ended",
		}, []string{"source"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "walletsync_transfers_total",
			Help: "transfer initiations by final state",
		}, []string{"state"}),
	}
	for _, col := range []prometheus.Collector{c.requests, c.ticks, c.staleBalances, c.transfers} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveRequest counts one gateway round trip.
func (c *Collector) ObserveRequest(operation, outcome string) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(operation, outcome).Inc()
}

// ObserveTick counts one refresh cycle.
func (c *Collector) ObserveTick() {
	if c == nil {
		return
	}
	c.ticks.Inc()
}

// ObserveStaleBalance counts a discarded balance write. source is "poll" or "transfer".
func (c *Collector) ObserveStaleBalance(source string) {
	if c == nil {
		return
	}
	c.staleBalances.WithLabelValues(source).Inc()
}

// ObserveTransfer counts a finished transfer initiation.
func (c *Collector) ObserveTransfer(state string) {
	if c == nil {
		return
	}
	c.transfers.WithLabelValues(state).Inc()
}
