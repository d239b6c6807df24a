// Package raft implements the replicated consensus core of the sal
// dynamic node-ID allocation server.
//
// The package provides leader election, log replication, commit-index
// advancement and persistent-state management for small clusters (three or
// five servers) talking over a shared broadcast bus with bounded payloads.
//
// # Overview
//
// The core is built from four cooperating pieces:
//   - Log: an append-only, index-addressed entry sequence stored durably
//     in a key/value backend.
//   - PersistentState: the log plus the durable currentTerm and votedFor
//     scalars.
//   - Cluster: cluster-size bookkeeping, peer discovery, and the per-peer
//     nextIndex/matchIndex replication trackers used by the Leader.
//   - Core: the Follower/Candidate/Leader state machine, the periodic
//     replication driver, and the RPC handlers.
//
// # Concurrency
//
// The core is strictly single-threaded: the periodic tick, the incoming RPC
// handlers and the response handlers must all be invoked from one event
// loop (see the server package). No method blocks; durable writes are
// synchronous calls into the storage backend.
//
// # Traffic gating
//
// Unlike textbook Raft, the Leader does not heartbeat forever. Once every
// entry is committed, replicated to every peer, and the whole cluster has
// been discovered, the Leader goes passive and stops issuing AppendEntries
// until something happens: a new log append, an incoming vote request, or
// peer discovery activity. This keeps the shared bus quiet when the cluster
// is idle.
//
// # Failure policy
//
// Any failing durable write aborts the action at hand, demotes the server
// to Follower in passive mode, and defers the next election by resetting
// the activity timestamp.
//
// # References
//
//   - Raft Paper: https://raft.github.io/raft.pdf
package raft
