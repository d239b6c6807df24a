package raft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// coreFixture bundles a core with all its test doubles.
type coreFixture struct {
	core    *Core
	backend *failingBackend
	caller  *mockCaller
	clock   *manualClock
	tracer  *recordingTracer
	monitor *recordingMonitor
}

func newTestCore(t *testing.T, selfID NodeID, clusterSize uint8, peers ...NodeID) *coreFixture {
	t.Helper()

	f := &coreFixture{
		backend: newFailingBackend(),
		caller:  &mockCaller{},
		clock:   newManualClock(),
		tracer:  &recordingTracer{},
		monitor: &recordingMonitor{},
	}

	core, err := NewCore(&CoreConfig{
		SelfID:              selfID,
		Backend:             f.backend,
		Caller:              f.caller,
		Tracer:              f.tracer,
		Monitor:             f.monitor,
		Clock:               f.clock,
		UpdateInterval:      100 * time.Millisecond,
		BaseActivityTimeout: 500 * time.Millisecond,
		ClusterSize:         clusterSize,
		Peers:               peers,
	})
	require.NoError(t, err)

	f.core = core
	return f
}

// tick advances the clock by one update interval and runs the periodic
// handler.
func (f *coreFixture) tick() {
	f.clock.advance(100 * time.Millisecond)
	f.core.Tick()
}

// electLeader walks the fixture through a full election: timeout,
// campaign, unanimous grants, completion.
func (f *coreFixture) electLeader(t *testing.T) {
	t.Helper()

	f.clock.advance(time.Second)
	f.core.Tick()
	require.Equal(t, StateCandidate, f.core.State())

	before := len(f.caller.voteCalls)
	f.tick() // Campaign starts
	term := f.core.CurrentTerm()
	for _, call := range f.caller.voteCalls[before:] {
		f.core.HandleRequestVoteResponse(call.server, &RequestVoteResponse{Term: term, VoteGranted: true})
	}

	f.tick() // Election completes
	require.True(t, f.core.IsLeader())
}

func TestNewCoreValidation(t *testing.T) {
	_, err := NewCore(&CoreConfig{})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewCore(&CoreConfig{SelfID: 1, Backend: newFailingBackend()})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestFollowerTimeoutStartsElection(t *testing.T) {
	f := newTestCore(t, 1, 3, 2, 3)

	// Within the timeout nothing happens.
	f.tick()
	require.Equal(t, StateFollower, f.core.State())

	f.clock.advance(time.Second)
	f.core.Tick()
	require.Equal(t, StateCandidate, f.core.State())
}

func TestPassiveFollowerNeverCampaigns(t *testing.T) {
	f := newTestCore(t, 1, 3, 2, 3)
	f.core.setActiveMode(false)

	f.clock.advance(time.Hour)
	f.core.Tick()
	require.Equal(t, StateFollower, f.core.State())
}

// Two servers with distinct IDs must never start elections in the same
// tick given identical clocks: the effective timeout is staggered by one
// update interval per ID step.
func TestElectionStaggerIsDeterministic(t *testing.T) {
	f1 := newTestCore(t, 1, 3, 2, 3)
	f3 := newTestCore(t, 3, 3, 1, 2)

	// Just past node 1's effective timeout (500ms), node 3 (700ms) stays put.
	for _, f := range []*coreFixture{f1, f3} {
		f.clock.advance(510 * time.Millisecond)
		f.core.Tick()
	}
	require.Equal(t, StateCandidate, f1.core.State())
	require.Equal(t, StateFollower, f3.core.State())

	// Node 3 follows two intervals later.
	f3.clock.advance(200 * time.Millisecond)
	f3.core.Tick()
	require.Equal(t, StateCandidate, f3.core.State())
}

// The three-node happy path: election, first allocation, replication to
// both peers, commit, monitor callback.
func TestThreeNodeHappyPath(t *testing.T) {
	f := newTestCore(t, 1, 3, 2, 3)

	f.clock.advance(510 * time.Millisecond)
	f.core.Tick()
	require.Equal(t, StateCandidate, f.core.State())

	f.tick() // Campaign
	require.Equal(t, Term(1), f.core.CurrentTerm())
	require.Len(t, f.caller.voteCalls, 2)
	for _, call := range f.caller.voteCalls {
		require.Equal(t, Term(1), call.req.Term)
		require.Equal(t, Index(0), call.req.LastLogIndex)
		require.Equal(t, Term(0), call.req.LastLogTerm)
	}

	f.core.HandleRequestVoteResponse(2, &RequestVoteResponse{Term: 1, VoteGranted: true})
	f.core.HandleRequestVoteResponse(3, &RequestVoteResponse{Term: 1, VoteGranted: true})

	f.tick()
	require.True(t, f.core.IsLeader())
	require.Equal(t, []bool{true}, f.monitor.leaderships)

	f.core.AppendLog(uid(0x01), 42)
	require.Equal(t, Index(1), f.core.NumAllocations())

	// First replication round.
	f.tick()
	require.Len(t, f.caller.appendCalls, 1)
	first := f.caller.appendCalls[0]
	require.Equal(t, Index(0), first.req.PrevLogIndex)
	require.Equal(t, Term(0), first.req.PrevLogTerm)
	require.Len(t, first.req.Entries, 1)
	require.Equal(t, Index(0), f.core.CommitIndex())

	f.core.HandleAppendEntriesResponse(first.server, &AppendEntriesResponse{Term: 1, Success: true})

	// Second round reaches the other peer; quorum commits the entry.
	f.tick()
	require.Len(t, f.caller.appendCalls, 2)
	second := f.caller.appendCalls[1]
	require.NotEqual(t, first.server, second.server)

	require.Equal(t, Index(1), f.core.CommitIndex())
	require.Len(t, f.monitor.commits, 1)
	require.Equal(t, NodeID(42), f.monitor.commits[0].NodeID)
	require.Equal(t, uid(0x01), f.monitor.commits[0].UniqueID)

	// P1: the commit index never passes the log.
	require.LessOrEqual(t, f.core.CommitIndex(), f.core.NumAllocations())
}

// A fully replicated, fully discovered cluster sends the Leader passive;
// a vote request wakes it up again.
func TestQuiescentPassivity(t *testing.T) {
	f := newTestCore(t, 1, 3, 2, 3)
	f.electLeader(t)

	f.core.AppendLog(uid(0x01), 42)

	// Replicate until both peers acknowledge and the entry commits.
	for i := 0; i < 4; i++ {
		before := len(f.caller.appendCalls)
		f.tick()
		for _, call := range f.caller.appendCalls[before:] {
			f.core.HandleAppendEntriesResponse(call.server,
				&AppendEntriesResponse{Term: f.core.CurrentTerm(), Success: true})
		}
	}
	require.Equal(t, Index(1), f.core.CommitIndex())

	// Drain the peer ring; the Leader must go passive and stay quiet.
	for i := 0; i < 3; i++ {
		f.tick()
	}
	require.False(t, f.core.IsActiveMode())

	quiet := len(f.caller.appendCalls)
	for i := 0; i < 5; i++ {
		f.tick()
	}
	require.Equal(t, quiet, len(f.caller.appendCalls))

	// An incoming vote request re-activates the gate.
	f.core.HandleRequestVoteRequest(2, &RequestVoteRequest{Term: f.core.CurrentTerm()})
	require.True(t, f.core.IsActiveMode())

	f.tick()
	require.Greater(t, len(f.caller.appendCalls), quiet)
}

// A response with a newer term demotes the Leader immediately.
func TestStaleLeaderStepsDown(t *testing.T) {
	f := newTestCore(t, 1, 3, 2, 3)
	f.electLeader(t)
	require.Equal(t, Term(1), f.core.CurrentTerm())

	f.core.HandleAppendEntriesResponse(2, &AppendEntriesResponse{Term: 7, Success: false})

	require.Equal(t, StateFollower, f.core.State())
	require.Equal(t, Term(7), f.core.CurrentTerm())
	require.False(t, f.core.IsActiveMode())
	require.False(t, f.core.persistentState.IsVotedForSet())
	require.Equal(t, []bool{true, false}, f.monitor.leaderships)

	// No further AppendEntries are issued, and no election starts either:
	// the server sits passive with a fresh activity timestamp.
	calls := len(f.caller.appendCalls)
	for i := 0; i < 10; i++ {
		f.tick()
	}
	require.Equal(t, calls, len(f.caller.appendCalls))
	require.Equal(t, StateFollower, f.core.State())
}

// Log divergence: the follower truncates from the conflicting index and
// reports failure so the Leader walks nextIndex back.
func TestLogDivergenceTruncation(t *testing.T) {
	f := newTestCore(t, 1, 3, 2, 3)
	log := f.core.persistentState.Log()

	require.NoError(t, f.core.persistentState.SetCurrentTerm(2))
	require.NoError(t, log.Append(Entry{Term: 1, NodeID: 10, UniqueID: uid(1)}))
	require.NoError(t, log.Append(Entry{Term: 1, NodeID: 11, UniqueID: uid(2)}))
	require.NoError(t, log.Append(Entry{Term: 2, NodeID: 12, UniqueID: uid(3)}))

	resp := f.core.HandleAppendEntriesRequest(2, &AppendEntriesRequest{
		Term:         3,
		PrevLogIndex: 3,
		PrevLogTerm:  3,
		Entries:      []Entry{{Term: 3, NodeID: 13, UniqueID: uid(4)}},
	})

	require.NotNil(t, resp)
	require.False(t, resp.Success)
	require.Equal(t, Index(2), log.LastIndex())

	// The Leader retries one step back; now the logs match.
	resp = f.core.HandleAppendEntriesRequest(2, &AppendEntriesRequest{
		Term:         3,
		PrevLogIndex: 2,
		PrevLogTerm:  1,
		Entries:      []Entry{{Term: 3, NodeID: 13, UniqueID: uid(4)}},
	})

	require.NotNil(t, resp)
	require.True(t, resp.Success)
	require.Equal(t, Index(3), log.LastIndex())
	require.Equal(t, NodeID(13), log.Get(3).NodeID)
}

// A durable write failure during the campaign aborts the election: the
// server drops back to passive Follower and defers the next attempt.
func TestCampaignAbortsOnVoteWriteFailure(t *testing.T) {
	f := newTestCore(t, 1, 3, 2, 3)

	f.clock.advance(time.Second)
	f.core.Tick()
	require.Equal(t, StateCandidate, f.core.State())

	f.backend.failPutKeys["voted_for"] = true
	activityBefore := f.core.LastActivityTime()
	f.tick()

	require.Equal(t, StateFollower, f.core.State())
	require.False(t, f.core.IsActiveMode())
	require.Empty(t, f.caller.voteCalls)
	require.True(t, f.core.LastActivityTime().After(activityBefore))
}

// An out-of-date candidate is denied regardless of votedFor.
func TestVoteDeniedForOutdatedLog(t *testing.T) {
	f := newTestCore(t, 1, 3, 2, 3)
	log := f.core.persistentState.Log()

	require.NoError(t, f.core.persistentState.SetCurrentTerm(3))
	for i, term := range []Term{1, 1, 2, 3, 3} {
		require.NoError(t, log.Append(Entry{Term: term, NodeID: NodeID(i + 10), UniqueID: uid(byte(i))}))
	}
	require.False(t, f.core.persistentState.IsVotedForSet())

	resp := f.core.HandleRequestVoteRequest(2, &RequestVoteRequest{
		Term:         3,
		LastLogIndex: 0,
		LastLogTerm:  0,
	})

	require.NotNil(t, resp)
	require.False(t, resp.VoteGranted)
	require.Equal(t, Term(3), resp.Term)
}

func TestVoteGrantingAndDenial(t *testing.T) {
	f := newTestCore(t, 1, 3, 2, 3)

	// First candidate of the term gets the vote.
	resp := f.core.HandleRequestVoteRequest(2, &RequestVoteRequest{Term: 1})
	require.NotNil(t, resp)
	require.True(t, resp.VoteGranted)
	require.Equal(t, NodeID(2), f.core.persistentState.VotedFor())

	// A competing candidate in the same term is denied.
	resp = f.core.HandleRequestVoteRequest(3, &RequestVoteRequest{Term: 1})
	require.NotNil(t, resp)
	require.False(t, resp.VoteGranted)

	// The original candidate may ask again.
	resp = f.core.HandleRequestVoteRequest(2, &RequestVoteRequest{Term: 1})
	require.NotNil(t, resp)
	require.True(t, resp.VoteGranted)

	// A stale-term candidate is denied outright.
	require.NoError(t, f.core.persistentState.SetCurrentTerm(5))
	resp = f.core.HandleRequestVoteRequest(3, &RequestVoteRequest{Term: 2})
	require.NotNil(t, resp)
	require.False(t, resp.VoteGranted)
	require.Equal(t, Term(5), resp.Term)
}

// Granting a vote while Candidate resolves the election race by stepping
// down first.
func TestVoteGrantResolvesCandidateRace(t *testing.T) {
	f := newTestCore(t, 1, 3, 2, 3)

	f.clock.advance(time.Second)
	f.core.Tick()
	f.tick() // Campaign: term 1, voted for self
	require.Equal(t, StateCandidate, f.core.State())

	resp := f.core.HandleRequestVoteRequest(2, &RequestVoteRequest{Term: 2})
	require.NotNil(t, resp)
	require.True(t, resp.VoteGranted)
	require.Equal(t, StateFollower, f.core.State())
	require.Equal(t, NodeID(2), f.core.persistentState.VotedFor())
	require.Equal(t, Term(2), f.core.CurrentTerm())
}

func TestAppendEntriesHandlerRejections(t *testing.T) {
	f := newTestCore(t, 1, 3, 2, 3)

	// Unknown sources are ignored entirely once the member list is full.
	require.Nil(t, f.core.HandleAppendEntriesRequest(9, &AppendEntriesRequest{Term: 1}))
	require.NotZero(t, f.tracer.count(TraceRequestIgnored))

	// Stale leader terms get an explicit failure.
	require.NoError(t, f.core.persistentState.SetCurrentTerm(5))
	resp := f.core.HandleAppendEntriesRequest(2, &AppendEntriesRequest{Term: 4})
	require.NotNil(t, resp)
	require.False(t, resp.Success)
	require.Equal(t, Term(5), resp.Term)

	// A missing predecessor entry fails without truncation.
	resp = f.core.HandleAppendEntriesRequest(2, &AppendEntriesRequest{
		Term:         5,
		PrevLogIndex: 3,
		PrevLogTerm:  5,
	})
	require.NotNil(t, resp)
	require.False(t, resp.Success)
}

func TestAppendEntriesFollowsLeaderCommit(t *testing.T) {
	f := newTestCore(t, 1, 3, 2, 3)

	resp := f.core.HandleAppendEntriesRequest(2, &AppendEntriesRequest{
		Term:         1,
		PrevLogIndex: 0,
		PrevLogTerm:  0,
		LeaderCommit: 9, // Beyond the local log; clamp to lastIndex
		Entries: []Entry{
			{Term: 1, NodeID: 20, UniqueID: uid(1)},
			{Term: 1, NodeID: 21, UniqueID: uid(2)},
		},
	})

	require.NotNil(t, resp)
	require.True(t, resp.Success)
	require.Equal(t, Index(2), f.core.CommitIndex())
	require.Equal(t, Index(2), f.core.persistentState.Log().LastIndex())
}

// A higher term in an AppendEntries request adopts the term and clears
// the stale vote before anything else.
func TestAppendEntriesAdoptsHigherTerm(t *testing.T) {
	f := newTestCore(t, 1, 3, 2, 3)
	require.NoError(t, f.core.persistentState.SetCurrentTerm(1))
	require.NoError(t, f.core.persistentState.SetVotedFor(3))

	resp := f.core.HandleAppendEntriesRequest(2, &AppendEntriesRequest{
		Term:         4,
		PrevLogIndex: 0,
		PrevLogTerm:  0,
	})

	require.NotNil(t, resp)
	require.True(t, resp.Success)
	require.Equal(t, Term(4), f.core.CurrentTerm())
	require.False(t, f.core.persistentState.IsVotedForSet())
}

// Persistence failure while adopting a higher term suppresses the
// response and applies the uniform failure policy.
func TestAppendEntriesTermAdoptionWriteFailure(t *testing.T) {
	f := newTestCore(t, 1, 3, 2, 3)
	f.backend.failPutKeys["current_term"] = true

	resp := f.core.HandleAppendEntriesRequest(2, &AppendEntriesRequest{Term: 3})

	require.Nil(t, resp)
	require.Equal(t, StateFollower, f.core.State())
	require.False(t, f.core.IsActiveMode())
}

// A failed entry append suppresses the response so the Leader retries.
func TestAppendEntriesWriteFailureSuppressesResponse(t *testing.T) {
	f := newTestCore(t, 1, 3, 2, 3)
	f.backend.failPutKeys["log_1"] = true

	resp := f.core.HandleAppendEntriesRequest(2, &AppendEntriesRequest{
		Term:    1,
		Entries: []Entry{{Term: 1, NodeID: 20, UniqueID: uid(1)}},
	})

	require.Nil(t, resp)
	require.Equal(t, Index(0), f.core.persistentState.Log().LastIndex())
}

func TestAppendEntriesResponseBookkeeping(t *testing.T) {
	f := newTestCore(t, 1, 3, 2, 3)
	f.electLeader(t)

	f.core.AppendLog(uid(0x01), 42)
	f.core.AppendLog(uid(0x02), 43)

	f.tick()
	require.Len(t, f.caller.appendCalls, 1)
	call := f.caller.appendCalls[0]
	require.Len(t, call.req.Entries, 2)

	f.core.HandleAppendEntriesResponse(call.server, &AppendEntriesResponse{Term: 1, Success: true})
	require.Equal(t, Index(3), f.core.cluster.NextIndex(call.server))
	require.Equal(t, Index(2), f.core.cluster.MatchIndex(call.server))

	// An unsuccessful response walks nextIndex back, clamped at 1; this
	// peer's nextIndex is already 1, so it stays there.
	f.tick()
	require.Len(t, f.caller.appendCalls, 2)
	second := f.caller.appendCalls[1]
	f.core.HandleAppendEntriesResponse(second.server, &AppendEntriesResponse{Term: 1, Success: false})
	require.Equal(t, Index(1), f.core.cluster.NextIndex(second.server))
}

// Commits advance one index per tick, in strict order, with exactly one
// monitor callback each.
func TestCommitsAdvanceOnePerTick(t *testing.T) {
	f := newTestCore(t, 1, 3, 2, 3)
	f.electLeader(t)

	f.core.AppendLog(uid(0x01), 42)
	f.core.AppendLog(uid(0x02), 43)

	f.tick()
	call := f.caller.appendCalls[len(f.caller.appendCalls)-1]
	f.core.HandleAppendEntriesResponse(call.server, &AppendEntriesResponse{Term: 1, Success: true})
	require.Equal(t, Index(0), f.core.CommitIndex())

	f.tick()
	require.Equal(t, Index(1), f.core.CommitIndex())
	f.tick()
	require.Equal(t, Index(2), f.core.CommitIndex())

	require.Len(t, f.monitor.commits, 2)
	require.Equal(t, NodeID(42), f.monitor.commits[0].NodeID)
	require.Equal(t, NodeID(43), f.monitor.commits[1].NodeID)
}

func TestResponsesIgnoredInWrongRole(t *testing.T) {
	f := newTestCore(t, 1, 3, 2, 3)

	f.core.HandleAppendEntriesResponse(2, &AppendEntriesResponse{Term: 1, Success: true})
	f.core.HandleRequestVoteResponse(2, &RequestVoteResponse{Term: 1, VoteGranted: true})

	require.Equal(t, 2, f.tracer.count(TraceResponseIgnored))
	require.Equal(t, StateFollower, f.core.State())
}

func TestCandidateAdoptsHigherTermFromVoteResponse(t *testing.T) {
	f := newTestCore(t, 1, 3, 2, 3)

	f.clock.advance(time.Second)
	f.core.Tick()
	f.tick() // Campaign at term 1

	f.core.HandleRequestVoteResponse(2, &RequestVoteResponse{Term: 6, VoteGranted: false})

	require.Equal(t, StateFollower, f.core.State())
	require.Equal(t, Term(6), f.core.CurrentTerm())
	require.False(t, f.core.IsActiveMode())
}

func TestLostElectionFallsBack(t *testing.T) {
	f := newTestCore(t, 1, 3, 2, 3)

	f.clock.advance(time.Second)
	f.core.Tick()
	f.tick() // Campaign; only the self-vote arrives

	f.core.HandleRequestVoteResponse(2, &RequestVoteResponse{Term: 1, VoteGranted: false})

	f.tick()
	require.Equal(t, StateFollower, f.core.State())
	require.Empty(t, f.monitor.leaderships)
}

func TestAppendLogOutsideLeadershipIsTracedNoop(t *testing.T) {
	f := newTestCore(t, 1, 3, 2, 3)

	f.core.AppendLog(uid(0xFF), 99)

	require.Equal(t, Index(0), f.core.NumAllocations())
	require.Equal(t, 1, f.tracer.count(TraceAppendLogIgnored))
}

func TestAppendLogWriteFailureCostsLeadership(t *testing.T) {
	f := newTestCore(t, 1, 3, 2, 3)
	f.electLeader(t)

	f.backend.failPutKeys["log_1"] = true
	f.core.AppendLog(uid(0x01), 42)

	require.Equal(t, StateFollower, f.core.State())
	require.False(t, f.core.IsActiveMode())
	require.Equal(t, []bool{true, false}, f.monitor.leaderships)
}

// The leadership-change callback may append to the log re-entrantly; the
// transition bookkeeping is already complete when it runs.
func TestMonitorMayAppendOnLeadershipChange(t *testing.T) {
	f := newTestCore(t, 1, 3, 2, 3)
	f.monitor.onLeadership = func(isLeader bool) {
		if isLeader {
			f.core.AppendLog(uid(0xEE), 77)
		}
	}

	f.electLeader(t)

	require.Equal(t, Index(1), f.core.NumAllocations())
	entry := f.core.persistentState.Log().Get(1)
	require.Equal(t, NodeID(77), entry.NodeID)
	require.Equal(t, f.core.CurrentTerm(), entry.Term)

	// The fresh entry replicates on the next tick.
	f.tick()
	require.NotEmpty(t, f.caller.appendCalls)
	require.Len(t, f.caller.appendCalls[0].req.Entries, 1)
}

func TestSingleNodeClusterCommitsAlone(t *testing.T) {
	f := newTestCore(t, 1, 1)

	f.clock.advance(time.Second)
	f.core.Tick() // Candidate
	f.tick()      // Campaign: the self-vote is the whole quorum
	f.tick()      // Leader
	require.True(t, f.core.IsLeader())

	f.core.AppendLog(uid(0x01), 42)
	f.tick()
	require.Equal(t, Index(1), f.core.CommitIndex())
	require.Len(t, f.monitor.commits, 1)

	// With nothing left to do the Leader idles passively.
	f.tick()
	require.False(t, f.core.IsActiveMode())
	require.Empty(t, f.caller.appendCalls)
}

func TestEntriesPerRequestAreCapped(t *testing.T) {
	f := newTestCore(t, 1, 3, 2, 3)
	f.electLeader(t)

	for i := 0; i < 6; i++ {
		f.core.AppendLog(uid(byte(i)), NodeID(40+i))
	}

	f.tick()
	require.NotEmpty(t, f.caller.appendCalls)
	require.Len(t, f.caller.appendCalls[0].req.Entries, MaxEntriesPerRequest)
}

func TestTraverseLogFromEnd(t *testing.T) {
	f := newTestCore(t, 1, 3, 2, 3)
	log := f.core.persistentState.Log()

	require.NoError(t, log.Append(Entry{Term: 1, NodeID: 10, UniqueID: uid(1)}))
	require.NoError(t, log.Append(Entry{Term: 1, NodeID: 11, UniqueID: uid(2)}))
	require.NoError(t, log.Append(Entry{Term: 1, NodeID: 12, UniqueID: uid(3)}))
	f.core.commitIndex = 2

	// The traversal runs from high to low indices.
	var seen []NodeID
	found := f.core.TraverseLogFromEnd(func(info LogEntryInfo) bool {
		seen = append(seen, info.Entry.NodeID)
		return info.Entry.NodeID == 11
	})
	require.NotNil(t, found)
	require.Equal(t, NodeID(11), found.Entry.NodeID)
	require.True(t, found.Committed)
	require.Equal(t, []NodeID{12, 11}, seen)

	// Uncommitted entries are flagged as such.
	top := f.core.TraverseLogFromEnd(func(info LogEntryInfo) bool {
		return info.Entry.NodeID == 12
	})
	require.NotNil(t, top)
	require.False(t, top.Committed)

	// No match traverses down to the sentinel and returns nil.
	require.Nil(t, f.core.TraverseLogFromEnd(func(info LogEntryInfo) bool {
		return info.Entry.NodeID == 99
	}))
}

func TestForceActiveMode(t *testing.T) {
	f := newTestCore(t, 1, 3, 2, 3)
	f.core.setActiveMode(false)

	f.core.ForceActiveMode()
	require.True(t, f.core.IsActiveMode())
}

func TestPeerDiscoveredFromIncomingRequest(t *testing.T) {
	f := newTestCore(t, 1, 3) // No peers seeded

	require.False(t, f.core.cluster.IsKnownServer(2))

	resp := f.core.HandleAppendEntriesRequest(2, &AppendEntriesRequest{Term: 1})
	require.NotNil(t, resp)
	require.True(t, f.core.cluster.IsKnownServer(2))
}

// Restart resumes from the stored term, vote and log.
func TestCoreRestartRestoresPersistentState(t *testing.T) {
	f := newTestCore(t, 1, 3, 2, 3)
	f.electLeader(t)
	f.core.AppendLog(uid(0x01), 42)

	core, err := NewCore(&CoreConfig{
		SelfID:  1,
		Backend: f.backend,
		Caller:  &mockCaller{},
		Clock:   newManualClock(),
	})
	require.NoError(t, err)

	require.Equal(t, Term(1), core.CurrentTerm())
	require.Equal(t, NodeID(1), core.persistentState.VotedFor())
	require.Equal(t, Index(1), core.NumAllocations())
	require.Equal(t, StateFollower, core.State())
	require.Equal(t, uint8(3), core.cluster.ClusterSize())

	// The allocation entry seeds discovery on restart: any node ID found in
	// the log is added while the member list has room, so node 42 is known.
	require.True(t, core.cluster.IsKnownServer(42))
}
