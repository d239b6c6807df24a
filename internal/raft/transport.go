package raft

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
)

// Caller is the client side of the bus RPC layer as seen by the core: it
// submits requests and cancels them. Responses do not come back through
// Caller; the transport owner feeds them to the core's response handlers.
//
// A cancelled call must never produce a response event, even if the reply
// datagram is already in flight. Transports that can time out a call must
// drop the timeout silently rather than synthesize a response.
type Caller interface {
	// CallAppendEntries submits one AppendEntries call to a server.
	CallAppendEntries(server NodeID, req *AppendEntriesRequest) error

	// CallRequestVote submits one RequestVote call to a server.
	CallRequestVote(server NodeID, req *RequestVoteRequest) error

	// CancelAppendEntriesCalls drops all in-flight AppendEntries calls.
	CancelAppendEntriesCalls()

	// CancelRequestVoteCalls drops all in-flight RequestVote calls.
	CancelRequestVoteCalls()
}

// Event kinds delivered by the transport.
const (
	EventAppendEntriesRequest uint8 = iota
	EventAppendEntriesResponse
	EventRequestVoteRequest
	EventRequestVoteResponse
)

// Event is one incoming bus message, already decoded and filtered.
// Exactly one of the payload pointers is set, matching Kind.
type Event struct {
	Kind uint8
	From NodeID
	Seq  uint32 // Request sequence; echo it when responding

	AppendEntriesReq  *AppendEntriesRequest
	AppendEntriesResp *AppendEntriesResponse
	RequestVoteReq    *RequestVoteRequest
	RequestVoteResp   *RequestVoteResponse
}

// Transport errors.
var (
	ErrUnknownPeer     = errors.New("raft: unknown peer address")
	ErrTransportClosed = errors.New("raft: transport closed")
)

// pendingCall identifies one outstanding request.
type pendingCall struct {
	server NodeID
	seq    uint32
}

// UDPTransport carries the RPCs over UDP datagrams, one message per
// datagram. Responses are matched to calls by sequence number; anything
// without a matching pending call is dropped, which is what makes
// cancellation airtight: Cancel* forgets the pending sequence numbers, so
// late replies can never reach the core.
//
// Datagram format: [type:1][seq:4][src:1][payload].
type UDPTransport struct {
	selfID NodeID
	conn   *net.UDPConn
	peers  map[NodeID]*net.UDPAddr

	events chan Event

	mu            sync.Mutex
	seq           uint32
	pendingAppend *pendingCall
	pendingVotes  []pendingCall
	closed        bool
}

// NewUDPTransport binds a UDP socket and prepares peer addressing.
// Requests from any unicast source are delivered; membership filtering is
// the core's job, since peer discovery feeds on observed traffic.
func NewUDPTransport(selfID NodeID, listenAddr string, peers map[NodeID]string) (*UDPTransport, error) {
	laddr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("raft: resolve listen address: %w", err)
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("raft: listen: %w", err)
	}

	resolved := make(map[NodeID]*net.UDPAddr, len(peers))
	for id, addr := range peers {
		uaddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("raft: resolve peer %d: %w", id, err)
		}
		resolved[id] = uaddr
	}

	t := &UDPTransport{
		selfID: selfID,
		conn:   conn,
		peers:  resolved,
		events: make(chan Event, 64),
	}

	go t.readLoop()
	return t, nil
}

// AddPeer registers (or replaces) the bus address of a remote node.
func (t *UDPTransport) AddPeer(id NodeID, addr string) error {
	uaddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("raft: resolve peer %d: %w", id, err)
	}

	t.mu.Lock()
	t.peers[id] = uaddr
	t.mu.Unlock()
	return nil
}

// Events returns the channel of decoded incoming messages. The channel is
// closed when the transport closes.
func (t *UDPTransport) Events() <-chan Event {
	return t.events
}

// LocalAddr returns the bound UDP address.
func (t *UDPTransport) LocalAddr() string {
	return t.conn.LocalAddr().String()
}

// CallAppendEntries implements Caller. Only one AppendEntries call can be
// outstanding; a new call replaces the previous pending slot.
func (t *UDPTransport) CallAppendEntries(server NodeID, req *AppendEntriesRequest) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	t.seq++
	seq := t.seq
	t.pendingAppend = &pendingCall{server: server, seq: seq}
	t.mu.Unlock()

	return t.send(server, RPCAppendEntries, seq, req.Serialize())
}

// CallRequestVote implements Caller.
func (t *UDPTransport) CallRequestVote(server NodeID, req *RequestVoteRequest) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	t.seq++
	seq := t.seq
	t.pendingVotes = append(t.pendingVotes, pendingCall{server: server, seq: seq})
	t.mu.Unlock()

	return t.send(server, RPCRequestVote, seq, req.Serialize())
}

// CancelAppendEntriesCalls implements Caller.
func (t *UDPTransport) CancelAppendEntriesCalls() {
	t.mu.Lock()
	t.pendingAppend = nil
	t.mu.Unlock()
}

// CancelRequestVoteCalls implements Caller.
func (t *UDPTransport) CancelRequestVoteCalls() {
	t.mu.Lock()
	t.pendingVotes = nil
	t.mu.Unlock()
}

// RespondAppendEntries sends a response for a previously received request.
func (t *UDPTransport) RespondAppendEntries(to NodeID, seq uint32, resp *AppendEntriesResponse) error {
	return t.send(to, RPCAppendEntriesReply, seq, resp.Serialize())
}

// RespondRequestVote sends a response for a previously received request.
func (t *UDPTransport) RespondRequestVote(to NodeID, seq uint32, resp *RequestVoteResponse) error {
	return t.send(to, RPCRequestVoteReply, seq, resp.Serialize())
}

// Close shuts the socket down and closes the event channel.
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	return t.conn.Close()
}

func (t *UDPTransport) send(to NodeID, msgType uint8, seq uint32, payload []byte) error {
	t.mu.Lock()
	addr, ok := t.peers[to]
	t.mu.Unlock()
	if !ok {
		return ErrUnknownPeer
	}

	buf := make([]byte, 6+len(payload))
	buf[0] = msgType
	binary.LittleEndian.PutUint32(buf[1:5], seq)
	buf[5] = uint8(t.selfID)
	copy(buf[6:], payload)

	if _, err := t.conn.WriteToUDP(buf, addr); err != nil {
		return fmt.Errorf("raft: send to %d: %w", to, err)
	}
	return nil
}

func (t *UDPTransport) readLoop() {
	defer close(t.events)

	buf := make([]byte, 2048)
	for {
		n, _, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			return // Socket closed
		}
		if n < 6 {
			continue
		}

		msgType := buf[0]
		seq := binary.LittleEndian.Uint32(buf[1:5])
		src := NodeID(buf[5])
		payload := buf[6:n]

		if !src.IsUnicast() || src == t.selfID {
			continue
		}

		ev, ok := t.decode(msgType, src, seq, payload)
		if !ok {
			continue
		}

		select {
		case t.events <- ev:
		default:
			// Event queue full; drop. The protocol retries naturally.
		}
	}
}

// decode parses one datagram into an Event, filtering responses against
// the pending-call table.
func (t *UDPTransport) decode(msgType uint8, src NodeID, seq uint32, payload []byte) (Event, bool) {
	ev := Event{From: src, Seq: seq}

	switch msgType {
	case RPCAppendEntries:
		req, err := DeserializeAppendEntriesRequest(payload)
		if err != nil {
			return ev, false
		}
		ev.Kind = EventAppendEntriesRequest
		ev.AppendEntriesReq = req

	case RPCAppendEntriesReply:
		if !t.takePendingAppend(src, seq) {
			return ev, false // Stale or cancelled call
		}
		resp, err := DeserializeAppendEntriesResponse(payload)
		if err != nil {
			return ev, false
		}
		ev.Kind = EventAppendEntriesResponse
		ev.AppendEntriesResp = resp

	case RPCRequestVote:
		req, err := DeserializeRequestVoteRequest(payload)
		if err != nil {
			return ev, false
		}
		ev.Kind = EventRequestVoteRequest
		ev.RequestVoteReq = req

	case RPCRequestVoteReply:
		if !t.takePendingVote(src, seq) {
			return ev, false // Stale or cancelled call
		}
		resp, err := DeserializeRequestVoteResponse(payload)
		if err != nil {
			return ev, false
		}
		ev.Kind = EventRequestVoteResponse
		ev.RequestVoteResp = resp

	default:
		return ev, false
	}

	return ev, true
}

func (t *UDPTransport) takePendingAppend(src NodeID, seq uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.pendingAppend
	if p == nil || p.server != src || p.seq != seq {
		return false
	}
	t.pendingAppend = nil
	return true
}

func (t *UDPTransport) takePendingVote(src NodeID, seq uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.pendingVotes {
		if t.pendingVotes[i].server == src && t.pendingVotes[i].seq == seq {
			t.pendingVotes = append(t.pendingVotes[:i], t.pendingVotes[i+1:]...)
			return true
		}
	}
	return false
}
