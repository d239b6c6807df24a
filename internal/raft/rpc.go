package raft

import (
	"encoding/binary"
	"time"
)

// RPC message types on the wire.
const (
	RPCAppendEntries uint8 = iota
	RPCAppendEntriesReply
	RPCRequestVote
	RPCRequestVoteReply
)

// MaxEntriesPerRequest caps the entries carried by one AppendEntries so
// the request fits the bus payload limit.
const MaxEntriesPerRequest = 4

// Defaults for the periodic interval and the election timeout base.
const (
	DefaultUpdateInterval      = 100 * time.Millisecond
	DefaultBaseActivityTimeout = 500 * time.Millisecond
)

// AppendEntriesRequest is sent by the Leader to replicate log entries and
// assert leadership. An empty Entries slice is a heartbeat.
type AppendEntriesRequest struct {
	Term         Term    // Leader's term
	PrevLogIndex Index   // Index of the entry immediately preceding Entries
	PrevLogTerm  Term    // Term of the entry at PrevLogIndex
	LeaderCommit Index   // Leader's commit index
	Entries      []Entry // At most MaxEntriesPerRequest entries
}

// Serialize encodes the request to bytes.
// Format: [Term:4][PrevLogIndex:4][PrevLogTerm:4][LeaderCommit:4][N:1][Entries:N*21]
func (r *AppendEntriesRequest) Serialize() []byte {
	buf := make([]byte, 17+len(r.Entries)*entrySize)
	binary.LittleEndian.PutUint32(buf[0:4], r.Term)
	binary.LittleEndian.PutUint32(buf[4:8], r.PrevLogIndex)
	binary.LittleEndian.PutUint32(buf[8:12], r.PrevLogTerm)
	binary.LittleEndian.PutUint32(buf[12:16], r.LeaderCommit)
	buf[16] = uint8(len(r.Entries))

	off := 17
	for i := range r.Entries {
		copy(buf[off:], r.Entries[i].Serialize())
		off += entrySize
	}
	return buf
}

// DeserializeAppendEntriesRequest decodes a request from bytes.
func DeserializeAppendEntriesRequest(data []byte) (*AppendEntriesRequest, error) {
	if len(data) < 17 {
		return nil, ErrLogCorrupted
	}

	n := int(data[16])
	if n > MaxEntriesPerRequest || len(data) < 17+n*entrySize {
		return nil, ErrLogCorrupted
	}

	req := &AppendEntriesRequest{
		Term:         binary.LittleEndian.Uint32(data[0:4]),
		PrevLogIndex: binary.LittleEndian.Uint32(data[4:8]),
		PrevLogTerm:  binary.LittleEndian.Uint32(data[8:12]),
		LeaderCommit: binary.LittleEndian.Uint32(data[12:16]),
	}

	off := 17
	for i := 0; i < n; i++ {
		e, err := DeserializeEntry(data[off : off+entrySize])
		if err != nil {
			return nil, err
		}
		req.Entries = append(req.Entries, *e)
		off += entrySize
	}
	return req, nil
}

// AppendEntriesResponse is the follower's reply.
type AppendEntriesResponse struct {
	Term    Term // Current term, for the Leader to update itself
	Success bool // True if the follower's log matched and entries were stored
}

// Serialize encodes the response to bytes.
func (r *AppendEntriesResponse) Serialize() []byte {
	buf := make([]byte, 5)
	binary.LittleEndian.PutUint32(buf[0:4], r.Term)
	if r.Success {
		buf[4] = 1
	}
	return buf
}

// DeserializeAppendEntriesResponse decodes a response from bytes.
func DeserializeAppendEntriesResponse(data []byte) (*AppendEntriesResponse, error) {
	if len(data) < 5 {
		return nil, ErrLogCorrupted
	}
	return &AppendEntriesResponse{
		Term:    binary.LittleEndian.Uint32(data[0:4]),
		Success: data[4] == 1,
	}, nil
}

// RequestVoteRequest is sent by Candidates to gather votes.
type RequestVoteRequest struct {
	Term         Term  // Candidate's term
	LastLogIndex Index // Index of the candidate's last log entry
	LastLogTerm  Term  // Term of the candidate's last log entry
}

// Serialize encodes the request to bytes.
func (r *RequestVoteRequest) Serialize() []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], r.Term)
	binary.LittleEndian.PutUint32(buf[4:8], r.LastLogIndex)
	binary.LittleEndian.PutUint32(buf[8:12], r.LastLogTerm)
	return buf
}

// DeserializeRequestVoteRequest decodes a request from bytes.
func DeserializeRequestVoteRequest(data []byte) (*RequestVoteRequest, error) {
	if len(data) < 12 {
		return nil, ErrLogCorrupted
	}
	return &RequestVoteRequest{
		Term:         binary.LittleEndian.Uint32(data[0:4]),
		LastLogIndex: binary.LittleEndian.Uint32(data[4:8]),
		LastLogTerm:  binary.LittleEndian.Uint32(data[8:12]),
	}, nil
}

// RequestVoteResponse is the reply to a vote request.
type RequestVoteResponse struct {
	Term        Term // Current term, for the Candidate to update itself
	VoteGranted bool // True if the Candidate received the vote
}

// Serialize encodes the response to bytes.
func (r *RequestVoteResponse) Serialize() []byte {
	buf := make([]byte, 5)
	binary.LittleEndian.PutUint32(buf[0:4], r.Term)
	if r.VoteGranted {
		buf[4] = 1
	}
	return buf
}

// DeserializeRequestVoteResponse decodes a response from bytes.
func DeserializeRequestVoteResponse(data []byte) (*RequestVoteResponse, error) {
	if len(data) < 5 {
		return nil, ErrLogCorrupted
	}
	return &RequestVoteResponse{
		Term:        binary.LittleEndian.Uint32(data[0:4]),
		VoteGranted: data[4] == 1,
	}, nil
}
