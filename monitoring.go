package mapi

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts ROP round trips. A nil *Metrics records nothing.
type Metrics struct {
	RopRequests *prometheus.CounterVec
	RopDuration *prometheus.HistogramVec
	RowsFetched prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer to expose them process-wide, or nil to keep
// them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RopRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mapi_rop_requests_total",
				Help: "Total number of ROPs sent, by outcome",
			},
			[]string{"rop", "outcome"},
		),
		RopDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mapi_rop_duration_seconds",
				Help:    "Round-trip latency of ROP buffers, labeled by their first ROP",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"rop"},
		),
		RowsFetched: f.NewCounter(
			prometheus.CounterOpts{
				Name: "mapi_rows_fetched_total",
				Help: "Total number of table rows decoded",
			},
		),
	}
}

const (
	outcomeOK        = "ok"
	outcomeWarning   = "warning"
	outcomeFailed    = "failed"
	outcomeTransport = "transport_error"
	outcomeBadReply  = "bad_response"
)

func (m *Metrics) observe(calls []*Call, outcome string, elapsed time.Duration) {
	if m == nil || len(calls) == 0 {
		return
	}
	m.RopDuration.WithLabelValues(calls[0].Rop.String()).Observe(elapsed.Seconds())
	for _, c := range calls {
		o := outcome
		if o == outcomeOK && c.Rop.hasResponse() {
			switch {
			case c.Status.Failed():
				o = outcomeFailed
			case c.Status.IsWarning():
				o = outcomeWarning
			}
		}
		m.RopRequests.WithLabelValues(c.Rop.String(), o).Inc()
	}
}

func (m *Metrics) rowsFetched(n int) {
	if m == nil {
		return
	}
	m.RowsFetched.Add(float64(n))
}
