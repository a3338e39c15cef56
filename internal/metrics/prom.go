//go:build prom

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

var (
	promStateCalls = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "papi_state_calls_total",
		Help: "Total number of state-call RPCs issued",
	})

	promCompatFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "papi_compat_failures_total",
		Help: "Total number of descriptor/runtime checksum mismatches",
	})

	promTxsSigned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "papi_txs_signed_total",
		Help: "Total number of extrinsics signed",
	})

	promTxsBroadcast = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "papi_txs_broadcast_total",
		Help: "Total number of extrinsics accepted by the transaction pool",
	})

	promBroadcastRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "papi_broadcast_rejected_total",
		Help: "Total number of extrinsics rejected by the transaction pool",
	})

	promTxsFinalized = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "papi_txs_finalized_total",
		Help: "Total number of tracked transactions reaching finality",
	})

	promTxsInvalidated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "papi_txs_invalidated_total",
		Help: "Total number of tracked transactions invalidated before inclusion",
	})

	promReorgRegressions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "papi_reorg_regressions_total",
		Help: "Total number of provisional inclusions lost to reorgs",
	})

	promBestHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "papi_best_height",
		Help: "Latest observed best-chain height",
	})

	promFinalizedHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "papi_finalized_height",
		Help: "Latest observed finalized height",
	})
)

func init() {
	prometheus.MustRegister(
		promStateCalls,
		promCompatFailures,
		promTxsSigned,
		promTxsBroadcast,
		promBroadcastRejected,
		promTxsFinalized,
		promTxsInvalidated,
		promReorgRegressions,
		promBestHeight,
		promFinalizedHeight,
	)
}

// updatePrometheusMetrics synchronizes expvar metrics with Prometheus metrics
func updatePrometheusMetrics() {
	promStateCalls.Add(float64(StateCalls.Value()) - getPromCounterValue(promStateCalls))
	promCompatFailures.Add(float64(CompatFailures.Value()) - getPromCounterValue(promCompatFailures))
	promTxsSigned.Add(float64(TxsSigned.Value()) - getPromCounterValue(promTxsSigned))
	promTxsBroadcast.Add(float64(TxsBroadcast.Value()) - getPromCounterValue(promTxsBroadcast))
	promBroadcastRejected.Add(float64(BroadcastRejected.Value()) - getPromCounterValue(promBroadcastRejected))
	promTxsFinalized.Add(float64(TxsFinalized.Value()) - getPromCounterValue(promTxsFinalized))
	promTxsInvalidated.Add(float64(TxsInvalidated.Value()) - getPromCounterValue(promTxsInvalidated))
	promReorgRegressions.Add(float64(ReorgRegressions.Value()) - getPromCounterValue(promReorgRegressions))

	promBestHeight.Set(float64(BestHeight.Value()))
	promFinalizedHeight.Set(float64(FinalizedHeight.Value()))
}

// getPromCounterValue gets the current value of a Prometheus counter
func getPromCounterValue(counter prometheus.Counter) float64 {
	metric := &dto.Metric{}
	if err := counter.Write(metric); err != nil {
		return 0
	}
	return metric.GetCounter().GetValue()
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics
func PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		updatePrometheusMetrics()
		promhttp.Handler().ServeHTTP(w, r)
	})
}
