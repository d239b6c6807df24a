package raft

import (
	"time"

	"github.com/KilimcininKorOglu/sal/internal/logging"
	"github.com/KilimcininKorOglu/sal/internal/storage"
)

// CoreConfig holds everything the consensus core needs.
type CoreConfig struct {
	// SelfID is the local node identifier (1..127).
	SelfID NodeID

	// Backend is the durable key/value store for the log, term and vote.
	Backend storage.Backend

	// Caller submits and cancels outgoing RPC calls.
	Caller Caller

	// Tracer receives structured core events. Optional.
	Tracer Tracer

	// Monitor is the allocation layer on top of the core. Optional.
	Monitor LeaderMonitor

	// Clock supplies monotonic time. Optional; defaults to the system clock.
	Clock Clock

	// Logger receives operational log lines. Optional.
	Logger logging.Logger

	// UpdateInterval is the periodic tick driving replication; it is also
	// the request timeout of outgoing calls. Defaults to
	// DefaultUpdateInterval.
	UpdateInterval time.Duration

	// BaseActivityTimeout is the base election timeout; the effective
	// timeout is staggered by node ID. Defaults to
	// DefaultBaseActivityTimeout.
	BaseActivityTimeout time.Duration

	// ClusterSize is the configured cluster size. Zero means use the size
	// persisted by a previous run.
	ClusterSize uint8

	// Peers optionally seeds discovery with statically configured remote
	// server identities. Discovery otherwise relies on the replicated log
	// and on observed RPC traffic.
	Peers []NodeID
}

func (cfg *CoreConfig) validate() error {
	if !cfg.SelfID.IsUnicast() {
		return ErrInvalidConfig
	}
	if cfg.Backend == nil || cfg.Caller == nil {
		return ErrInvalidConfig
	}
	if cfg.UpdateInterval < 0 || cfg.BaseActivityTimeout < 0 {
		return ErrInvalidConfig
	}
	if cfg.ClusterSize > MaxClusterSize {
		return ErrInvalidConfig
	}
	return nil
}

// pendingAppendEntriesFields records the parameters of the single
// outstanding AppendEntries call. The slot is valid only until the next
// Leader tick or state switch; both invalidate it.
type pendingAppendEntriesFields struct {
	prevLogIndex Index
	numEntries   Index
}

// Core is the Raft state machine: leader election, log replication,
// commit-index advancement, and the active/passive traffic gate.
//
// Core is not safe for concurrent use. Tick, the four Handle* methods,
// AppendLog and TraverseLogFromEnd must all run on one event loop.
type Core struct {
	selfID              NodeID
	updateInterval      time.Duration
	baseActivityTimeout time.Duration

	tracer  Tracer
	monitor LeaderMonitor
	clock   Clock
	logger  logging.Logger
	caller  Caller

	persistentState *PersistentState
	cluster         *Cluster
	commitIndex     Index

	lastActivityTime time.Time
	activeMode       bool
	serverState      ServerState

	nextServerIndex int // Next server to send AppendEntries to
	votesReceived   int // Votes collected in the current campaign

	pendingAppendEntries pendingAppendEntriesFields
}

// NewCore creates and initializes the consensus core: the persistent state
// is loaded (or created) from the backend and the cluster size resolved.
// The caller owns driving Tick at the configured update interval.
func NewCore(cfg *CoreConfig) (*Core, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = NopTracer{}
	}
	monitor := cfg.Monitor
	if monitor == nil {
		monitor = nopMonitor{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	updateInterval := cfg.UpdateInterval
	if updateInterval == 0 {
		updateInterval = DefaultUpdateInterval
	}
	baseActivityTimeout := cfg.BaseActivityTimeout
	if baseActivityTimeout == 0 {
		baseActivityTimeout = DefaultBaseActivityTimeout
	}

	persistentState := NewPersistentState(cfg.Backend, tracer)

	c := &Core{
		selfID:              cfg.SelfID,
		updateInterval:      updateInterval,
		baseActivityTimeout: baseActivityTimeout,
		tracer:              tracer,
		monitor:             monitor,
		clock:               clock,
		logger:              logger.WithFields("node", uint8(cfg.SelfID)),
		caller:              cfg.Caller,
		persistentState:     persistentState,
		cluster:             NewCluster(cfg.Backend, persistentState.Log(), tracer, cfg.SelfID),
		commitIndex:         0, // Per the Raft paper
		activeMode:          true,
		serverState:         StateFollower,
	}
	c.lastActivityTime = clock.Now()

	if err := persistentState.Init(); err != nil {
		return nil, err
	}
	if err := c.cluster.Init(cfg.ClusterSize); err != nil {
		return nil, err
	}
	for _, peer := range cfg.Peers {
		c.cluster.TryAddServer(peer)
	}

	c.tracer.OnEvent(TraceCoreInited, int64(updateInterval/time.Microsecond))
	return c, nil
}

// Tick drives elections and replication. It must be invoked every
// UpdateInterval.
func (c *Core) Tick() {
	if c.cluster.HadDiscoveryActivity() && c.serverState == StateLeader {
		c.setActiveMode(true)
	}

	switch c.serverState {
	case StateFollower:
		c.updateFollower()
	case StateCandidate:
		c.updateCandidate()
	case StateLeader:
		c.updateLeader()
	}
}

func (c *Core) registerActivity() {
	c.lastActivityTime = c.clock.Now()
}

// isActivityTimedOut applies the deterministic election stagger: node 1
// times out after the base timeout, node 2 one update interval later, and
// so on. Distinct IDs can never start elections in the same tick.
func (c *Core) isActivityTimedOut() bool {
	timeout := c.baseActivityTimeout + c.updateInterval*time.Duration(c.selfID-1)
	return c.clock.Now().After(c.lastActivityTime.Add(timeout))
}

// handlePersistentStateUpdateError implements the uniform storage-failure
// policy: abort, demote to passive Follower, defer the next election.
func (c *Core) handlePersistentStateUpdateError(err error) {
	c.logger.Error("persistent state update failed", "error", err)
	c.tracer.OnEvent(TracePersistStateUpdateError, -1)
	c.switchState(StateFollower)
	c.setActiveMode(false)
	c.registerActivity() // Deferring reelections
}

func (c *Core) updateFollower() {
	if c.activeMode && c.isActivityTimedOut() {
		c.switchState(StateCandidate)
		c.registerActivity()
	}
}

func (c *Core) updateCandidate() {
	if c.votesReceived > 0 {
		// The campaign has run for one full interval; count the ballots.
		c.tracer.OnEvent(TraceElectionComplete, int64(c.votesReceived))
		won := c.votesReceived >= c.cluster.QuorumSize()
		c.logger.Info("election complete", "votes", c.votesReceived, "won", won)
		if won {
			c.switchState(StateLeader)
		} else {
			c.switchState(StateFollower)
		}
		return
	}

	// First tick as Candidate: start a new campaign.
	if err := c.persistentState.SetVotedFor(c.selfID); err != nil {
		c.handlePersistentStateUpdateError(err)
		return
	}
	if err := c.persistentState.SetCurrentTerm(c.persistentState.CurrentTerm() + 1); err != nil {
		c.handlePersistentStateUpdateError(err)
		return
	}

	c.votesReceived = 1 // Voting for self

	log := c.persistentState.Log()
	req := &RequestVoteRequest{
		Term:         c.persistentState.CurrentTerm(),
		LastLogIndex: log.LastIndex(),
		LastLogTerm:  log.LastTerm(),
	}

	for i := 0; i < c.cluster.NumKnownServers(); i++ {
		server := c.cluster.RemoteServerAt(i)
		c.tracer.OnEvent(TraceVoteRequestInitiation, int64(server))
		if err := c.caller.CallRequestVote(server, req); err != nil {
			c.tracer.OnEvent(TraceError, int64(server))
		}
	}
}

func (c *Core) updateLeader() {
	if c.cluster.ClusterSize() == 1 {
		c.setActiveMode(false)
	}

	// The response callback only understands the immediately prior call,
	// so anything still in flight is dropped before a new one is issued.
	c.caller.CancelAppendEntriesCalls()

	if n := c.cluster.NumKnownServers(); n > 0 && (c.activeMode || c.nextServerIndex > 0) {
		server := c.cluster.RemoteServerAt(c.nextServerIndex)

		c.nextServerIndex++
		if c.nextServerIndex >= n {
			c.nextServerIndex = 0
		}

		log := c.persistentState.Log()
		req := &AppendEntriesRequest{
			Term:         c.persistentState.CurrentTerm(),
			LeaderCommit: c.commitIndex,
			PrevLogIndex: c.cluster.NextIndex(server) - 1,
		}

		prev := log.Get(req.PrevLogIndex)
		if prev == nil {
			c.handlePersistentStateUpdateError(errLogic)
			return
		}
		req.PrevLogTerm = prev.Term

		for index := c.cluster.NextIndex(server); index <= log.LastIndex(); index++ {
			entry := log.Get(index)
			if entry == nil {
				break
			}
			req.Entries = append(req.Entries, *entry)
			if len(req.Entries) == MaxEntriesPerRequest {
				break
			}
		}

		c.pendingAppendEntries = pendingAppendEntriesFields{
			prevLogIndex: req.PrevLogIndex,
			numEntries:   Index(len(req.Entries)),
		}

		if err := c.caller.CallAppendEntries(server, req); err != nil {
			c.tracer.OnEvent(TraceAppendEntriesCallFailure, int64(server))
		}
	}

	c.propagateCommitIndex()
}

// switchState applies the transition bookkeeping: replication trackers and
// campaign counters reset, in-flight calls are cancelled, and the monitor
// learns about Leader-boundary crossings. Switching to the current state
// is a no-op.
func (c *Core) switchState(newState ServerState) {
	if c.serverState == newState {
		return
	}

	c.logger.Info("state switch",
		"from", c.serverState.String(),
		"to", newState.String(),
		"term", c.persistentState.CurrentTerm())
	c.tracer.OnEvent(TraceStateSwitch, int64(newState))

	oldState := c.serverState
	c.serverState = newState

	c.cluster.ResetAllServerIndices()
	c.nextServerIndex = 0
	c.votesReceived = 0
	c.pendingAppendEntries = pendingAppendEntriesFields{}

	c.caller.CancelRequestVoteCalls()
	c.caller.CancelAppendEntriesCalls()

	// The monitor may append to the log from this callback, so every piece
	// of bookkeeping above must already be in place.
	if oldState == StateLeader || newState == StateLeader {
		c.monitor.OnLeadershipChange(newState == StateLeader)
	}
}

func (c *Core) setActiveMode(active bool) {
	if c.activeMode == active {
		return
	}

	c.activeMode = active
	arg := int64(0)
	if active {
		arg = 1
	}
	c.tracer.OnEvent(TraceActiveSwitch, arg)
}

// adoptHigherTermFromResponse handles a response carrying a newer term:
// the local server cannot be Leader or Candidate in that term, so it
// stores the term, clears its vote, and steps down quietly.
func (c *Core) adoptHigherTermFromResponse(newTerm Term) {
	c.tracer.OnEvent(TraceNewerTermInResponse, int64(newTerm))

	if err := c.persistentState.SetCurrentTerm(newTerm); err != nil {
		c.tracer.OnEvent(TracePersistStateUpdateError, -1)
	}
	if err := c.persistentState.ResetVotedFor(); err != nil {
		c.tracer.OnEvent(TracePersistStateUpdateError, -1)
	}

	c.registerActivity() // Deferring future elections
	c.switchState(StateFollower)
	c.setActiveMode(false)
}

// propagateCommitIndex decides, on every Leader tick, whether the commit
// index can advance and whether the Leader may go passive.
func (c *Core) propagateCommitIndex() {
	log := c.persistentState.Log()

	if c.commitIndex == log.LastIndex() {
		// All local entries are committed. The Leader may go passive once
		// the log is known fully replicated: every peer's matchIndex
		// equals the commit index, every peer's nextIndex is beyond it,
		// and the whole cluster has been discovered.
		matchEqualsCommit := true
		nextBeyondCommit := true
		for i := 0; i < c.cluster.NumKnownServers(); i++ {
			server := c.cluster.RemoteServerAt(i)
			if c.cluster.MatchIndex(server) != c.commitIndex {
				matchEqualsCommit = false
				break
			}
			if c.cluster.NextIndex(server) <= c.commitIndex {
				nextBeyondCommit = false
				break
			}
		}

		allDone := matchEqualsCommit && nextBeyondCommit && c.cluster.IsClusterDiscovered()
		c.setActiveMode(!allDone)
		return
	}

	// Uncommitted local entries exist; stay active and see whether the
	// next one is on a quorum yet.
	c.setActiveMode(true)

	available := 1 // Local node
	for i := 0; i < c.cluster.NumKnownServers(); i++ {
		if c.cluster.MatchIndex(c.cluster.RemoteServerAt(i)) > c.commitIndex {
			available++
		}
	}

	if available >= c.cluster.QuorumSize() {
		c.commitIndex++
		c.tracer.OnEvent(TraceNewEntryCommitted, int64(c.commitIndex))
		c.logger.Info("entry committed", "index", c.commitIndex)

		if entry := log.Get(c.commitIndex); entry != nil {
			c.monitor.OnLogCommit(*entry)
		}
	}
}

// HandleAppendEntriesRequest processes an incoming AppendEntries request.
// A nil return means no response is sent.
func (c *Core) HandleAppendEntriesRequest(from NodeID, req *AppendEntriesRequest) *AppendEntriesResponse {
	c.cluster.TryAddServer(from)
	if !c.cluster.IsKnownServer(from) {
		c.tracer.OnEvent(TraceRequestIgnored, int64(from))
		return nil
	}

	state := c.persistentState

	if req.Term > state.CurrentTerm() {
		if err := state.SetCurrentTerm(req.Term); err != nil {
			c.handlePersistentStateUpdateError(err)
			return nil
		}
		if err := state.ResetVotedFor(); err != nil {
			c.handlePersistentStateUpdateError(err)
			return nil
		}
	}

	resp := &AppendEntriesResponse{Term: state.CurrentTerm(), Success: false}

	// Step 1: reject a stale leader.
	if req.Term < state.CurrentTerm() {
		return resp
	}

	c.registerActivity()
	c.switchState(StateFollower)
	c.setActiveMode(false)

	log := state.Log()

	// Step 2: the assumed predecessor entry must exist locally.
	prev := log.Get(req.PrevLogIndex)
	if prev == nil {
		return resp
	}

	// Step 3: drop conflicting entries on a term mismatch.
	if prev.Term != req.PrevLogTerm {
		if err := log.TruncateFrom(req.PrevLogIndex); err != nil {
			c.tracer.OnEvent(TracePersistStateUpdateError, -1)
			return nil
		}
		return resp
	}

	// Step 4: rewind to the match point before appending.
	if req.PrevLogIndex != log.LastIndex() {
		if err := log.TruncateAfter(req.PrevLogIndex); err != nil {
			c.tracer.OnEvent(TracePersistStateUpdateError, -1)
			return nil
		}
	}

	for i := range req.Entries {
		if err := log.Append(req.Entries[i]); err != nil {
			// No response; the Leader will time out and retry with a
			// lower nextIndex.
			c.tracer.OnEvent(TracePersistStateUpdateError, -1)
			return nil
		}
	}

	// Step 5: follow the leader's commit index.
	if req.LeaderCommit > c.commitIndex {
		c.commitIndex = req.LeaderCommit
		if last := log.LastIndex(); c.commitIndex > last {
			c.commitIndex = last
		}
		c.tracer.OnEvent(TraceCommitIndexUpdate, int64(c.commitIndex))
	}

	resp.Success = true
	return resp
}

// HandleAppendEntriesResponse processes the reply to the single
// outstanding AppendEntries call. The transport only delivers replies to
// live calls; every state switch and every Leader tick cancels the prior
// call, so a reply observed here always pertains to the current role.
func (c *Core) HandleAppendEntriesResponse(from NodeID, resp *AppendEntriesResponse) {
	if c.serverState != StateLeader {
		c.tracer.OnEvent(TraceResponseIgnored, int64(from))
		return
	}

	if resp.Term > c.persistentState.CurrentTerm() {
		c.adoptHigherTermFromResponse(resp.Term)
	} else if resp.Success {
		c.cluster.IncrementNextIndexBy(from, c.pendingAppendEntries.numEntries)
		c.cluster.SetMatchIndex(from,
			c.pendingAppendEntries.prevLogIndex+c.pendingAppendEntries.numEntries)
	} else {
		c.cluster.DecrementNextIndex(from)
		c.tracer.OnEvent(TraceAppendEntriesRespUnsuccessful, int64(from))
	}

	c.pendingAppendEntries = pendingAppendEntriesFields{}
	// The rest of the logic lives in the periodic update handlers.
}

// HandleRequestVoteRequest processes an incoming vote request.
// A nil return means no response is sent.
func (c *Core) HandleRequestVoteRequest(from NodeID, req *RequestVoteRequest) *RequestVoteResponse {
	c.tracer.OnEvent(TraceVoteRequestReceived, int64(from))

	c.cluster.TryAddServer(from)
	if !c.cluster.IsKnownServer(from) {
		c.tracer.OnEvent(TraceRequestIgnored, int64(from))
		return nil
	}

	c.setActiveMode(true)

	state := c.persistentState

	if req.Term > state.CurrentTerm() {
		c.switchState(StateFollower) // Our term is stale, so we cannot lead

		if err := state.SetCurrentTerm(req.Term); err != nil {
			c.handlePersistentStateUpdateError(err)
			return nil
		}
		if err := state.ResetVotedFor(); err != nil {
			c.handlePersistentStateUpdateError(err)
			return nil
		}
	}

	resp := &RequestVoteResponse{Term: state.CurrentTerm()}

	if req.Term < state.CurrentTerm() {
		resp.VoteGranted = false
		return resp
	}

	canVote := !state.IsVotedForSet() || state.VotedFor() == from
	logOK := state.Log().IsOtherLogUpToDate(req.LastLogIndex, req.LastLogTerm)
	resp.VoteGranted = canVote && logOK

	if resp.VoteGranted {
		c.switchState(StateFollower) // Avoiding a race when Candidate
		c.registerActivity()         // Avoiding excessive elections

		if err := state.SetVotedFor(from); err != nil {
			c.handlePersistentStateUpdateError(err)
			return nil
		}
	}

	return resp
}

// HandleRequestVoteResponse processes a vote reply. As with AppendEntries
// replies, only live calls reach this handler.
func (c *Core) HandleRequestVoteResponse(from NodeID, resp *RequestVoteResponse) {
	if c.serverState != StateCandidate {
		c.tracer.OnEvent(TraceResponseIgnored, int64(from))
		return
	}

	c.tracer.OnEvent(TraceVoteRequestSucceeded, int64(from))

	if resp.Term > c.persistentState.CurrentTerm() {
		c.adoptHigherTermFromResponse(resp.Term)
	} else if resp.VoteGranted {
		c.votesReceived++
	}
	// The next tick finishes the election.
}

// AppendLog inserts one allocation entry. Only the Leader may call it;
// calling it in any other state is a caller bug and a traced no-op.
// A failing durable write costs the node its leadership.
func (c *Core) AppendLog(uniqueID UniqueID, nodeID NodeID) {
	if c.serverState != StateLeader {
		c.tracer.OnEvent(TraceAppendLogIgnored, int64(nodeID))
		return
	}

	entry := Entry{
		Term:     c.persistentState.CurrentTerm(),
		NodeID:   nodeID,
		UniqueID: uniqueID,
	}

	c.tracer.OnEvent(TraceNewLogEntry, int64(nodeID))
	if err := c.persistentState.Log().Append(entry); err != nil {
		c.handlePersistentStateUpdateError(err)
	}
}

// LogEntryInfo pairs an entry with its commit status during traversal.
type LogEntryInfo struct {
	Entry     Entry
	Committed bool
}

// TraverseLogFromEnd walks the log from the last index down to the
// sentinel at index 0, stopping at the first entry for which pred returns
// true. It returns that entry, or nil if the predicate never matched.
// The allocation layer uses this to detect duplicate allocations.
func (c *Core) TraverseLogFromEnd(pred func(LogEntryInfo) bool) *LogEntryInfo {
	log := c.persistentState.Log()
	for index := int64(log.LastIndex()); index >= 0; index-- {
		entry := log.Get(Index(index))
		if entry == nil {
			return nil
		}
		info := LogEntryInfo{Entry: *entry, Committed: Index(index) <= c.commitIndex}
		if pred(info) {
			return &info
		}
	}
	return nil
}

// ForceActiveMode re-activates the core; called by the allocation layer
// when there is allocation traffic on the bus.
func (c *Core) ForceActiveMode() {
	c.setActiveMode(true)
}

// IsLeader returns true if the local server is the current Leader.
func (c *Core) IsLeader() bool {
	return c.serverState == StateLeader
}

// State returns the current server state.
func (c *Core) State() ServerState {
	return c.serverState
}

// CommitIndex returns the current commit index.
func (c *Core) CommitIndex() Index {
	return c.commitIndex
}

// AreAllLogEntriesCommitted indicates whether replication has caught up
// with the last allocation.
func (c *Core) AreAllLogEntriesCommitted() bool {
	return c.commitIndex == c.persistentState.Log().LastIndex()
}

// CurrentTerm returns the current term.
func (c *Core) CurrentTerm() Term {
	return c.persistentState.CurrentTerm()
}

// IsActiveMode reports whether the core is in active mode.
func (c *Core) IsActiveMode() bool {
	return c.activeMode
}

// LastActivityTime returns the timestamp of the last registered activity.
func (c *Core) LastActivityTime() time.Time {
	return c.lastActivityTime
}

// NumAllocations returns the number of allocation entries in the log.
// The sentinel entry at index 0 does not count.
func (c *Core) NumAllocations() Index {
	return c.persistentState.Log().LastIndex()
}
