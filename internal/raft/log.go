package raft

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/KilimcininKorOglu/sal/internal/storage"
)

// Storage keys used by the log.
const (
	keyLogLastIndex = "log_last_index"
	keyLogEntryFmt  = "log_%d"
)

// Log is the durable, index-addressed entry sequence. Index 0 holds the
// sentinel entry with term 0, created on first initialization and never
// removed; real allocations start at index 1.
//
// Truncation only rewrites the stored last index. Entries beyond it become
// unreachable and are overwritten by future appends, so no delete support
// is required from the backend.
//
// Every mutator writes durably first and advances the in-memory last-index
// cache only on success.
type Log struct {
	backend storage.Backend
	tracer  Tracer

	lastIndex Index
}

// NewLog creates a log over the given backend. Init must be called before use.
func NewLog(backend storage.Backend, tracer Tracer) *Log {
	return &Log{
		backend: backend,
		tracer:  tracer,
	}
}

// Init loads the log from storage, creating the sentinel entry on first
// boot, and verifies that every stored entry is readable and that terms
// are non-decreasing with index.
func (l *Log) Init() error {
	last, err := l.readLastIndex()
	if errors.Is(err, storage.ErrNotFound) {
		// First boot: create the sentinel entry, then the index pointing
		// at it.
		sentinel := Entry{}
		if err := l.backend.Put(entryKey(0), sentinel.Serialize()); err != nil {
			return fmt.Errorf("raft: init sentinel entry: %w", err)
		}
		if err := l.writeLastIndex(0); err != nil {
			return fmt.Errorf("raft: init last index: %w", err)
		}
		l.lastIndex = 0
		return nil
	}
	if err != nil {
		return err
	}

	l.tracer.OnEvent(TraceLogLastIndexRestored, int64(last))

	var prevTerm Term
	for index := Index(0); index <= last; index++ {
		entry, err := l.readEntry(index)
		if err != nil {
			return err
		}
		if index == 0 && entry.Term != 0 {
			return ErrLogCorrupted
		}
		if entry.Term < prevTerm {
			return ErrLogCorrupted
		}
		prevTerm = entry.Term
	}

	l.lastIndex = last
	return nil
}

// LastIndex returns the index of the last entry. The sentinel entry makes
// this 0 for an empty log.
func (l *Log) LastIndex() Index {
	return l.lastIndex
}

// LastTerm returns the term of the last entry.
func (l *Log) LastTerm() Term {
	entry := l.Get(l.lastIndex)
	if entry == nil {
		return 0
	}
	return entry.Term
}

// Get returns the entry at the index, or nil if the index is out of range
// or the entry cannot be read back.
func (l *Log) Get(index Index) *Entry {
	if index > l.lastIndex {
		return nil
	}

	entry, err := l.readEntry(index)
	if err != nil {
		return nil
	}
	return entry
}

// Append durably writes one entry after the current last entry.
// On error neither durable nor in-memory state changes.
func (l *Log) Append(entry Entry) error {
	index := l.lastIndex + 1

	if err := l.backend.Put(entryKey(index), entry.Serialize()); err != nil {
		return fmt.Errorf("raft: append entry %d: %w", index, err)
	}
	if err := l.writeLastIndex(index); err != nil {
		// The entry was written but the index still points before it, so
		// the durable log is unchanged.
		return fmt.Errorf("raft: append entry %d: %w", index, err)
	}

	l.lastIndex = index
	l.tracer.OnEvent(TraceLogAppend, int64(index))
	return nil
}

// TruncateFrom removes all entries with index >= the argument. It must
// never be called with index 0: the sentinel entry is permanent.
func (l *Log) TruncateFrom(index Index) error {
	if index == 0 {
		return errLogic
	}
	return l.truncateTo(index - 1)
}

// TruncateAfter removes all entries with index > the argument.
func (l *Log) TruncateAfter(index Index) error {
	return l.truncateTo(index)
}

func (l *Log) truncateTo(newLast Index) error {
	if newLast >= l.lastIndex {
		return nil
	}

	if err := l.writeLastIndex(newLast); err != nil {
		return fmt.Errorf("raft: truncate to %d: %w", newLast, err)
	}

	l.lastIndex = newLast
	l.tracer.OnEvent(TraceLogRemove, int64(newLast))
	return nil
}

// IsOtherLogUpToDate implements the Raft up-to-date comparison: the other
// log wins on a higher last term, or on equal terms if it is at least as
// long.
func (l *Log) IsOtherLogUpToDate(otherLastIndex Index, otherLastTerm Term) bool {
	selfLastTerm := l.LastTerm()
	if otherLastTerm > selfLastTerm {
		return true
	}
	return otherLastTerm == selfLastTerm && otherLastIndex >= l.lastIndex
}

func (l *Log) readEntry(index Index) (*Entry, error) {
	data, err := l.backend.Get(entryKey(index))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrLogIndexOutOfRange
		}
		return nil, err
	}
	return DeserializeEntry(data)
}

func (l *Log) readLastIndex() (Index, error) {
	data, err := l.backend.Get(keyLogLastIndex)
	if err != nil {
		return 0, err
	}
	if len(data) < 4 {
		return 0, ErrLogCorrupted
	}
	return binary.LittleEndian.Uint32(data), nil
}

func (l *Log) writeLastIndex(index Index) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, index)
	return l.backend.Put(keyLogLastIndex, buf)
}

func entryKey(index Index) string {
	return fmt.Sprintf(keyLogEntryFmt, index)
}
