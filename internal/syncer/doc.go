// Package syncer drives index refreshes from a session source, on demand
// and on a periodic schedule.
//
// A pass lists sessions (one bounded page), previews and indexes them in
// fixed-size batches, stamps the sync time and prunes the embedding cache.
// Passes never overlap: a Sync call made while one is running returns
// ErrSyncInProgress and the caller coalesces with the in-flight run. The
// periodic schedule is an explicit handle with Start and Stop.
package syncer
