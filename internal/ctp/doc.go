// Package ctp implements the Collection Tree Protocol stack run by each
// simulated sensor node: link estimator, routing engine, forwarding engine,
// and CSMA/CA link layer.
//
// The stack is driven exclusively by events delivered from an external
// discrete-event scheduler (see [Scheduler]); no handler here blocks or
// owns a goroutine of its own. All mutable state lives in a [NodeState]
// value the scheduler hands back on every call, so that optimistic
// rollback can restore a prior snapshot without the core knowing about it.
package ctp
