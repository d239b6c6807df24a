package raft

import "encoding/binary"

// NodeID identifies a node on the bus. Valid unicast IDs are 1..127;
// zero means "unset".
type NodeID uint8

// MaxNodeID is the highest valid unicast node ID.
const MaxNodeID NodeID = 127

// IsUnicast returns true for a valid unicast node ID.
func (n NodeID) IsUnicast() bool {
	return n >= 1 && n <= MaxNodeID
}

// Term is the monotonic leadership epoch counter.
type Term = uint32

// Index addresses a log entry. Index 0 is the sentinel entry.
type Index = uint32

// UniqueIDSize is the size of the hardware unique ID carried by an entry.
const UniqueIDSize = 16

// UniqueID is the 128-bit hardware identifier an allocation binds to.
type UniqueID [UniqueIDSize]byte

// Entry is one allocation record in the replicated log: the statement
// "node UniqueID is granted node ID NodeID", made during Term.
type Entry struct {
	Term     Term
	NodeID   NodeID
	UniqueID UniqueID
}

// entrySize is the wire and storage footprint of one entry.
// Format: [Term:4][NodeID:1][UniqueID:16]
const entrySize = 4 + 1 + UniqueIDSize

// Serialize encodes the entry to bytes.
func (e *Entry) Serialize() []byte {
	buf := make([]byte, entrySize)
	binary.LittleEndian.PutUint32(buf[0:4], e.Term)
	buf[4] = uint8(e.NodeID)
	copy(buf[5:], e.UniqueID[:])
	return buf
}

// DeserializeEntry decodes an entry from bytes.
func DeserializeEntry(data []byte) (*Entry, error) {
	if len(data) < entrySize {
		return nil, ErrLogCorrupted
	}

	e := &Entry{
		Term:   binary.LittleEndian.Uint32(data[0:4]),
		NodeID: NodeID(data[4]),
	}
	copy(e.UniqueID[:], data[5:5+UniqueIDSize])
	return e, nil
}
