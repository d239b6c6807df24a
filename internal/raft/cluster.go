package raft

import (
	"errors"
	"fmt"

	"github.com/KilimcininKorOglu/sal/internal/storage"
)

// MaxClusterSize is the largest supported cluster.
const MaxClusterSize = 5

// keyClusterSize stores the configured cluster size.
const keyClusterSize = "cluster_size"

// serverRecord is the Leader-side replication tracker for one remote
// server. nextIndex and matchIndex are volatile; they reset on every state
// transition.
type serverRecord struct {
	id         NodeID
	nextIndex  Index
	matchIndex Index
}

// Cluster knows the configured cluster size and the identities of the
// remote servers, learned from the replicated log and from observed RPC
// traffic. For each known server it keeps the Leader-only nextIndex and
// matchIndex bookkeeping.
type Cluster struct {
	backend storage.Backend
	log     *Log
	tracer  Tracer
	selfID  NodeID

	clusterSize uint8
	servers     []serverRecord

	hadDiscoveryActivity bool
}

// NewCluster creates a cluster tracker. Init must be called before use.
func NewCluster(backend storage.Backend, log *Log, tracer Tracer, selfID NodeID) *Cluster {
	return &Cluster{
		backend: backend,
		log:     log,
		tracer:  tracer,
		selfID:  selfID,
	}
}

// Init resolves the cluster size and seeds peer discovery from the log.
//
// On first initialization the configured size is persisted. On subsequent
// runs the stored size is authoritative; a configured size, if provided
// (non-zero), must match it.
func (c *Cluster) Init(configuredSize uint8) error {
	stored, err := c.readClusterSize()
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if configuredSize == 0 {
			return ErrClusterSizeUnknown
		}
		if configuredSize > MaxClusterSize {
			return ErrInvalidConfig
		}
		if err := c.backend.Put(keyClusterSize, []byte{configuredSize}); err != nil {
			return fmt.Errorf("raft: persist cluster size: %w", err)
		}
		c.clusterSize = configuredSize

	case err != nil:
		return err

	default:
		if configuredSize != 0 && configuredSize != stored {
			return ErrClusterSizeMismatch
		}
		if stored == 0 || stored > MaxClusterSize {
			return ErrInvalidConfig
		}
		c.clusterSize = stored
	}

	c.tracer.OnEvent(TraceClusterSizeInited, int64(c.clusterSize))

	// Server identities recorded in the log are known members; count them
	// as discovered before any traffic arrives.
	for index := Index(1); index <= c.log.LastIndex(); index++ {
		if entry := c.log.Get(index); entry != nil {
			c.TryAddServer(entry.NodeID)
		}
	}

	return nil
}

// ClusterSize returns the configured cluster size, including self.
func (c *Cluster) ClusterSize() uint8 {
	return c.clusterSize
}

// QuorumSize returns the majority threshold including self.
func (c *Cluster) QuorumSize() int {
	return int(c.clusterSize)/2 + 1
}

// NumKnownServers returns how many remote servers have been discovered.
func (c *Cluster) NumKnownServers() int {
	return len(c.servers)
}

// IsClusterDiscovered returns true once every remote member is known.
func (c *Cluster) IsClusterDiscovered() bool {
	return len(c.servers) == int(c.clusterSize)-1
}

// IsKnownServer returns true if the ID belongs to a discovered remote server.
func (c *Cluster) IsKnownServer(id NodeID) bool {
	return c.find(id) != nil
}

// RemoteServerAt returns the remote server ID at the given position, or 0
// if the position is out of range.
func (c *Cluster) RemoteServerAt(position int) NodeID {
	if position < 0 || position >= len(c.servers) {
		return 0
	}
	return c.servers[position].id
}

// TryAddServer registers a newly observed server identity. It is a no-op
// for the local ID, invalid IDs, already known servers, and once the
// remote-member list is full. Returns true if the server was added.
func (c *Cluster) TryAddServer(id NodeID) bool {
	if !id.IsUnicast() || id == c.selfID || c.find(id) != nil {
		return false
	}
	if len(c.servers) >= int(c.clusterSize)-1 {
		return false
	}

	c.servers = append(c.servers, serverRecord{
		id:         id,
		nextIndex:  c.log.LastIndex() + 1,
		matchIndex: 0,
	})
	c.hadDiscoveryActivity = true
	c.tracer.OnEvent(TraceNewServerDiscovered, int64(id))
	return true
}

// HadDiscoveryActivity reports whether a new server was learned since the
// previous call, clearing the flag.
func (c *Cluster) HadDiscoveryActivity() bool {
	had := c.hadDiscoveryActivity
	c.hadDiscoveryActivity = false
	return had
}

// NextIndex returns the next log index to send to the server.
func (c *Cluster) NextIndex(id NodeID) Index {
	if s := c.find(id); s != nil {
		return s.nextIndex
	}
	return 0
}

// MatchIndex returns the highest log index known replicated on the server.
func (c *Cluster) MatchIndex(id NodeID) Index {
	if s := c.find(id); s != nil {
		return s.matchIndex
	}
	return 0
}

// IncrementNextIndexBy advances the server's nextIndex after a successful
// AppendEntries round.
func (c *Cluster) IncrementNextIndexBy(id NodeID, n Index) {
	if s := c.find(id); s != nil {
		s.nextIndex += n
	}
}

// DecrementNextIndex walks the server's nextIndex back one step, clamped
// at 1 so the sentinel entry is never shipped.
func (c *Cluster) DecrementNextIndex(id NodeID) {
	if s := c.find(id); s != nil && s.nextIndex > 1 {
		s.nextIndex--
	}
}

// SetMatchIndex records the replication progress of the server.
func (c *Cluster) SetMatchIndex(id NodeID, index Index) {
	if s := c.find(id); s != nil {
		s.matchIndex = index
	}
}

// ResetAllServerIndices reinitializes every tracker to
// {nextIndex: lastLogIndex + 1, matchIndex: 0}.
func (c *Cluster) ResetAllServerIndices() {
	for i := range c.servers {
		c.servers[i].nextIndex = c.log.LastIndex() + 1
		c.servers[i].matchIndex = 0
	}
}

func (c *Cluster) find(id NodeID) *serverRecord {
	for i := range c.servers {
		if c.servers[i].id == id {
			return &c.servers[i]
		}
	}
	return nil
}

func (c *Cluster) readClusterSize() (uint8, error) {
	data, err := c.backend.Get(keyClusterSize)
	if err != nil {
		return 0, err
	}
	if len(data) < 1 {
		return 0, ErrInvalidConfig
	}
	return data[0], nil
}
