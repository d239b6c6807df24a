package raft

import "errors"

// Raft errors.
var (
	// ErrNotLeader is returned when a leader-only operation is attempted on
	// a non-leader node.
	ErrNotLeader = errors.New("raft: not the leader")

	// ErrLogCorrupted is returned when stored log data cannot be decoded or
	// violates the term-monotonicity invariant.
	ErrLogCorrupted = errors.New("raft: log corrupted")

	// ErrLogIndexOutOfRange is returned when accessing an invalid log index.
	ErrLogIndexOutOfRange = errors.New("raft: log index out of range")

	// ErrClusterSizeMismatch is returned when the configured cluster size
	// disagrees with the size persisted during a previous run.
	ErrClusterSizeMismatch = errors.New("raft: cluster size mismatch")

	// ErrClusterSizeUnknown is returned when no cluster size was configured
	// and none is present in persistent storage.
	ErrClusterSizeUnknown = errors.New("raft: cluster size unknown")

	// ErrInvalidConfig is returned when configuration is invalid.
	ErrInvalidConfig = errors.New("raft: invalid configuration")

	// errLogic marks states that are unreachable unless there is a bug.
	errLogic = errors.New("raft: internal logic error")
)
