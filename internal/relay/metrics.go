// Relay counters on go-metrics with a periodic JSON report.
package relay

import (
	"io"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

func incr(name string, i int64) {
	gometrics.GetOrRegisterCounter(name, gometrics.DefaultRegistry).Inc(i)
}

func decr(name string, i int64) {
	gometrics.GetOrRegisterCounter(name, gometrics.DefaultRegistry).Dec(i)
}

// StartMetricsReport emits a JSON snapshot of all counters to w every tick.
func StartMetricsReport(tick time.Duration, w io.Writer) {
	go gometrics.WriteJSON(gometrics.DefaultRegistry, tick, w)
}

// WriteMetricsOnce emits one final snapshot, used on shutdown.
func WriteMetricsOnce(w io.Writer) {
	gometrics.WriteJSONOnce(gometrics.DefaultRegistry, w)
}
