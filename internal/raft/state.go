package raft

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/KilimcininKorOglu/sal/internal/storage"
)

// ServerState is the role of the local server.
type ServerState uint8

// Server states.
const (
	StateFollower ServerState = iota
	StateCandidate
	StateLeader
)

// String returns the string representation of a server state.
func (s ServerState) String() string {
	switch s {
	case StateFollower:
		return "follower"
	case StateCandidate:
		return "candidate"
	case StateLeader:
		return "leader"
	default:
		return "unknown"
	}
}

// Storage keys used by the persistent state.
const (
	keyCurrentTerm = "current_term"
	keyVotedFor    = "voted_for"
)

// PersistentState is the durable triple (log, currentTerm, votedFor).
// Setters commit to storage before touching the in-memory mirror and
// surface the write error on failure.
//
// SetCurrentTerm does not clear votedFor; callers adopting a higher term
// must sequence SetCurrentTerm and ResetVotedFor themselves.
type PersistentState struct {
	backend storage.Backend
	tracer  Tracer
	log     *Log

	currentTerm Term
	votedFor    NodeID // 0 means not voted
}

// NewPersistentState creates the persistent state over the given backend.
// Init must be called before use.
func NewPersistentState(backend storage.Backend, tracer Tracer) *PersistentState {
	return &PersistentState{
		backend: backend,
		tracer:  tracer,
		log:     NewLog(backend, tracer),
	}
}

// Init loads the log, currentTerm and votedFor from storage, writing
// zero-value defaults on first boot. The restored term must not be older
// than the last log entry's term.
func (p *PersistentState) Init() error {
	if err := p.log.Init(); err != nil {
		return err
	}

	term, err := p.readTerm()
	if errors.Is(err, storage.ErrNotFound) {
		if err := p.writeTerm(0); err != nil {
			return fmt.Errorf("raft: init current term: %w", err)
		}
		term = 0
	} else if err != nil {
		return err
	} else {
		p.tracer.OnEvent(TraceCurrentTermRestored, int64(term))
	}

	if term < p.log.LastTerm() {
		return ErrLogCorrupted
	}
	p.currentTerm = term

	votedFor, err := p.readVotedFor()
	if errors.Is(err, storage.ErrNotFound) {
		if err := p.writeVotedFor(0); err != nil {
			return fmt.Errorf("raft: init voted for: %w", err)
		}
		votedFor = 0
	} else if err != nil {
		return err
	} else {
		p.tracer.OnEvent(TraceVotedForRestored, int64(votedFor))
	}
	p.votedFor = votedFor

	return nil
}

// Log returns the contained log.
func (p *PersistentState) Log() *Log {
	return p.log
}

// CurrentTerm returns the current term.
func (p *PersistentState) CurrentTerm() Term {
	return p.currentTerm
}

// SetCurrentTerm durably stores a new term. The term must not decrease.
func (p *PersistentState) SetCurrentTerm(term Term) error {
	if term < p.currentTerm {
		return errLogic
	}

	if err := p.writeTerm(term); err != nil {
		return fmt.Errorf("raft: set current term: %w", err)
	}

	p.currentTerm = term
	p.tracer.OnEvent(TraceCurrentTermUpdate, int64(term))
	return nil
}

// VotedFor returns the node voted for in the current term, or 0.
func (p *PersistentState) VotedFor() NodeID {
	return p.votedFor
}

// IsVotedForSet returns true once a vote has been cast this term.
func (p *PersistentState) IsVotedForSet() bool {
	return p.votedFor.IsUnicast()
}

// SetVotedFor durably records a vote for the given node.
func (p *PersistentState) SetVotedFor(id NodeID) error {
	if !id.IsUnicast() {
		return errLogic
	}

	if err := p.writeVotedFor(id); err != nil {
		return fmt.Errorf("raft: set voted for: %w", err)
	}

	p.votedFor = id
	p.tracer.OnEvent(TraceVotedForUpdate, int64(id))
	return nil
}

// ResetVotedFor durably clears the vote; called when the term advances.
func (p *PersistentState) ResetVotedFor() error {
	if err := p.writeVotedFor(0); err != nil {
		return fmt.Errorf("raft: reset voted for: %w", err)
	}

	p.votedFor = 0
	p.tracer.OnEvent(TraceVotedForUpdate, 0)
	return nil
}

func (p *PersistentState) readTerm() (Term, error) {
	data, err := p.backend.Get(keyCurrentTerm)
	if err != nil {
		return 0, err
	}
	if len(data) < 4 {
		return 0, ErrLogCorrupted
	}
	return binary.LittleEndian.Uint32(data), nil
}

func (p *PersistentState) writeTerm(term Term) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, term)
	return p.backend.Put(keyCurrentTerm, buf)
}

func (p *PersistentState) readVotedFor() (NodeID, error) {
	data, err := p.backend.Get(keyVotedFor)
	if err != nil {
		return 0, err
	}
	if len(data) < 1 {
		return 0, ErrLogCorrupted
	}
	return NodeID(data[0]), nil
}

func (p *PersistentState) writeVotedFor(id NodeID) error {
	return p.backend.Put(keyVotedFor, []byte{uint8(id)})
}
