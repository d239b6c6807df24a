package raft

import "github.com/KilimcininKorOglu/sal/internal/logging"

// TraceCode identifies a core event reported to the Tracer.
type TraceCode uint8

// Trace codes.
const (
	TraceCoreInited TraceCode = iota
	TraceStateSwitch
	TraceActiveSwitch
	TraceNewLogEntry
	TraceNewEntryCommitted
	TraceCommitIndexUpdate
	TraceElectionComplete
	TraceVoteRequestInitiation
	TraceVoteRequestReceived
	TraceVoteRequestSucceeded
	TraceNewerTermInResponse
	TraceAppendEntriesCallFailure
	TraceAppendEntriesRespUnsuccessful
	TraceRequestIgnored
	TracePersistStateUpdateError
	TraceAppendLogIgnored
	TraceResponseIgnored
	TraceLogLastIndexRestored
	TraceLogAppend
	TraceLogRemove
	TraceCurrentTermRestored
	TraceCurrentTermUpdate
	TraceVotedForRestored
	TraceVotedForUpdate
	TraceClusterSizeInited
	TraceNewServerDiscovered
	TraceError
)

// String returns the symbolic name of the trace code.
func (c TraceCode) String() string {
	switch c {
	case TraceCoreInited:
		return "core_inited"
	case TraceStateSwitch:
		return "state_switch"
	case TraceActiveSwitch:
		return "active_switch"
	case TraceNewLogEntry:
		return "new_log_entry"
	case TraceNewEntryCommitted:
		return "new_entry_committed"
	case TraceCommitIndexUpdate:
		return "commit_index_update"
	case TraceElectionComplete:
		return "election_complete"
	case TraceVoteRequestInitiation:
		return "vote_request_initiation"
	case TraceVoteRequestReceived:
		return "vote_request_received"
	case TraceVoteRequestSucceeded:
		return "vote_request_succeeded"
	case TraceNewerTermInResponse:
		return "newer_term_in_response"
	case TraceAppendEntriesCallFailure:
		return "append_entries_call_failure"
	case TraceAppendEntriesRespUnsuccessful:
		return "append_entries_resp_unsuccessful"
	case TraceRequestIgnored:
		return "request_ignored"
	case TracePersistStateUpdateError:
		return "persist_state_update_error"
	case TraceAppendLogIgnored:
		return "append_log_ignored"
	case TraceResponseIgnored:
		return "response_ignored"
	case TraceLogLastIndexRestored:
		return "log_last_index_restored"
	case TraceLogAppend:
		return "log_append"
	case TraceLogRemove:
		return "log_remove"
	case TraceCurrentTermRestored:
		return "current_term_restored"
	case TraceCurrentTermUpdate:
		return "current_term_update"
	case TraceVotedForRestored:
		return "voted_for_restored"
	case TraceVotedForUpdate:
		return "voted_for_update"
	case TraceClusterSizeInited:
		return "cluster_size_inited"
	case TraceNewServerDiscovered:
		return "new_server_discovered"
	case TraceError:
		return "error"
	default:
		return "unknown"
	}
}

// Tracer receives structured core events. Implementations must not call
// back into the core.
type Tracer interface {
	// OnEvent reports one event with a code-specific integer argument.
	OnEvent(code TraceCode, argument int64)
}

// NopTracer discards all events.
type NopTracer struct{}

// OnEvent implements Tracer.
func (NopTracer) OnEvent(TraceCode, int64) {}

// LogTracer forwards events to a structured logger at debug level.
type LogTracer struct {
	log logging.Logger
}

// NewLogTracer creates a Tracer writing to the given logger.
func NewLogTracer(log logging.Logger) *LogTracer {
	return &LogTracer{log: log}
}

// OnEvent implements Tracer.
func (t *LogTracer) OnEvent(code TraceCode, argument int64) {
	t.log.Debug("raft event", "code", code.String(), "arg", argument)
}
