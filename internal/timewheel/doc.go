// Package timewheel implements a hierarchical timing-wheel scheduler for
// large numbers of one-shot and repeating timers.
//
// # Overview
//
// The scheduler owns an ordered chain of wheels, coarsest first. Each wheel
// is a circular bucket array; a background driver ticks the finest wheel on
// a fixed cadence and, as coarser buckets become current, their jobs
// cascade down into finer wheels until they pop as due. Inserts and ticks
// are O(1) per level; no global ordering is maintained.
//
// # Cancellation and reset
//
// CancelTimer and ResetTimer* never search the hierarchy. They record the
// request in a side map and the driver applies it when the job is next
// popped as due: O(1) bookkeeping traded against deferred effect. A reset
// therefore only becomes observable once the original due time arrives.
//
// # Execution
//
// Due callbacks are handed to an Executor and run off the driver thread.
// The driver lock is released before any callback runs, so callbacks may
// re-enter the scheduler freely.
package timewheel
