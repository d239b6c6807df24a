package raft

import (
	"errors"
	"time"

	"github.com/KilimcininKorOglu/sal/internal/storage"
)

// errDisk simulates a failing durable write.
var errDisk = errors.New("disk failure")

// failingBackend wraps a MemoryBackend and fails writes on demand.
type failingBackend struct {
	*storage.MemoryBackend
	failAllPuts bool
	failPutKeys map[string]bool
}

func newFailingBackend() *failingBackend {
	return &failingBackend{
		MemoryBackend: storage.NewMemoryBackend(),
		failPutKeys:   make(map[string]bool),
	}
}

func (f *failingBackend) Put(key string, value []byte) error {
	if f.failAllPuts || f.failPutKeys[key] {
		return errDisk
	}
	return f.MemoryBackend.Put(key, value)
}

// manualClock is a Clock advanced explicitly by the test.
type manualClock struct {
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Unix(1000, 0)}
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) advance(d time.Duration) { c.now = c.now.Add(d) }

// recordingTracer keeps every traced event.
type recordingTracer struct {
	events []tracedEvent
}

type tracedEvent struct {
	code TraceCode
	arg  int64
}

func (r *recordingTracer) OnEvent(code TraceCode, arg int64) {
	r.events = append(r.events, tracedEvent{code: code, arg: arg})
}

func (r *recordingTracer) count(code TraceCode) int {
	n := 0
	for _, ev := range r.events {
		if ev.code == code {
			n++
		}
	}
	return n
}

// recordingMonitor records commits and leadership changes. An optional
// onLeadership hook exercises the re-entrant AppendLog path.
type recordingMonitor struct {
	commits      []Entry
	leaderships  []bool
	onLeadership func(isLeader bool)
}

func (m *recordingMonitor) OnLogCommit(entry Entry) {
	m.commits = append(m.commits, entry)
}

func (m *recordingMonitor) OnLeadershipChange(isLeader bool) {
	m.leaderships = append(m.leaderships, isLeader)
	if m.onLeadership != nil {
		m.onLeadership(isLeader)
	}
}

// mockCaller records outgoing calls and cancellations.
type mockCaller struct {
	appendCalls   []mockAppendCall
	voteCalls     []mockVoteCall
	appendCancels int
	voteCancels   int
	callErr       error
}

type mockAppendCall struct {
	server NodeID
	req    *AppendEntriesRequest
}

type mockVoteCall struct {
	server NodeID
	req    *RequestVoteRequest
}

func (m *mockCaller) CallAppendEntries(server NodeID, req *AppendEntriesRequest) error {
	if m.callErr != nil {
		return m.callErr
	}
	m.appendCalls = append(m.appendCalls, mockAppendCall{server: server, req: req})
	return nil
}

func (m *mockCaller) CallRequestVote(server NodeID, req *RequestVoteRequest) error {
	if m.callErr != nil {
		return m.callErr
	}
	m.voteCalls = append(m.voteCalls, mockVoteCall{server: server, req: req})
	return nil
}

func (m *mockCaller) CancelAppendEntriesCalls() { m.appendCancels++ }

func (m *mockCaller) CancelRequestVoteCalls() { m.voteCancels++ }

// uid builds a unique ID whose bytes all carry the given value.
func uid(b byte) UniqueID {
	var u UniqueID
	for i := range u {
		u[i] = b
	}
	return u
}
