// Package metrics tracks client activity counters exposed via expvar,
// with optional Prometheus export when built with -tags=prom.
package metrics

import (
	"expvar"
	"time"
)

// Global metrics exposed via expvar
var (
	// Counters
	StateCalls        = expvar.NewInt("papi_state_calls")
	CompatFailures    = expvar.NewInt("papi_compat_failures")
	CodecBuilds       = expvar.NewInt("papi_codec_builds")
	CacheHits         = expvar.NewInt("papi_runtime_cache_hits")
	TxsSigned         = expvar.NewInt("papi_txs_signed")
	TxsBroadcast      = expvar.NewInt("papi_txs_broadcast")
	BroadcastRejected = expvar.NewInt("papi_broadcast_rejected")
	TxsFinalized      = expvar.NewInt("papi_txs_finalized")
	TxsInvalidated    = expvar.NewInt("papi_txs_invalidated")
	ReorgRegressions  = expvar.NewInt("papi_reorg_regressions")

	// Gauges
	BestHeight      = expvar.NewInt("papi_best_height")
	FinalizedHeight = expvar.NewInt("papi_finalized_height")

	StartTime = expvar.NewString("papi_start_time")
)

func init() {
	StartTime.Set(time.Now().UTC().Format(time.RFC3339))
}

// IncrementStateCalls counts one state-call RPC issued to the chain.
func IncrementStateCalls() {
	StateCalls.Add(1)
}

// IncrementCompatFailures counts a descriptor/runtime checksum mismatch.
func IncrementCompatFailures() {
	CompatFailures.Add(1)
}

// IncrementCodecBuilds counts a dynamic codec construction.
func IncrementCodecBuilds() {
	CodecBuilds.Add(1)
}

// IncrementCacheHits counts a runtime-context or codec cache hit.
func IncrementCacheHits() {
	CacheHits.Add(1)
}

// IncrementTxsSigned counts a successfully signed extrinsic.
func IncrementTxsSigned() {
	TxsSigned.Add(1)
}

// IncrementTxsBroadcast counts a pool-accepted broadcast.
func IncrementTxsBroadcast() {
	TxsBroadcast.Add(1)
}

// IncrementBroadcastRejected counts a pool rejection.
func IncrementBroadcastRejected() {
	BroadcastRejected.Add(1)
}

// IncrementTxsFinalized counts a tracked transaction reaching finality.
func IncrementTxsFinalized() {
	TxsFinalized.Add(1)
}

// IncrementTxsInvalidated counts a tracked transaction expiring or
// being dropped before inclusion.
func IncrementTxsInvalidated() {
	TxsInvalidated.Add(1)
}

// IncrementReorgRegressions counts a provisional inclusion lost to a
// chain reorganization.
func IncrementReorgRegressions() {
	ReorgRegressions.Add(1)
}

// SetBestHeight updates the best-chain height gauge.
func SetBestHeight(height uint64) {
	BestHeight.Set(int64(height))
}

// SetFinalizedHeight updates the finalized height gauge.
func SetFinalizedHeight(height uint64) {
	FinalizedHeight.Set(int64(height))
}
