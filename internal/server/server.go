// Package server runs the consensus core on a single event loop.
//
// The core itself is not safe for concurrent use; this package owns the
// one goroutine that touches it. The periodic tick and every transport
// event are serialized through the loop, which gives the core the
// cooperative single-threaded execution model it requires.
package server

import (
	"sync/atomic"
	"time"

	"github.com/KilimcininKorOglu/sal/internal/logging"
	"github.com/KilimcininKorOglu/sal/internal/raft"
)

// Server drives a raft.Core from a ticker and a UDP transport.
type Server struct {
	core      *raft.Core
	transport *raft.UDPTransport
	interval  time.Duration
	logger    logging.Logger

	stopCh  chan struct{}
	doneCh  chan struct{}
	running int32
}

// New creates a server around an initialized core and transport.
// The interval must equal the core's update interval.
func New(core *raft.Core, transport *raft.UDPTransport, interval time.Duration, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{
		core:      core,
		transport: transport,
		interval:  interval,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Run blocks, driving the core until Stop is called or the transport
// closes.
func (s *Server) Run() error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return nil // Already running
	}
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("event loop started", "interval", s.interval.String())

	for {
		select {
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.core.Tick()
		case ev, ok := <-s.transport.Events():
			if !ok {
				return raft.ErrTransportClosed
			}
			s.dispatch(ev)
		}
	}
}

// Stop terminates the event loop and waits for it to drain.
func (s *Server) Stop() {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 2) {
		return
	}
	close(s.stopCh)
	<-s.doneCh
}

// dispatch routes one transport event into the core and sends any
// response back over the wire.
func (s *Server) dispatch(ev raft.Event) {
	switch ev.Kind {
	case raft.EventAppendEntriesRequest:
		if resp := s.core.HandleAppendEntriesRequest(ev.From, ev.AppendEntriesReq); resp != nil {
			if err := s.transport.RespondAppendEntries(ev.From, ev.Seq, resp); err != nil {
				s.logger.Warn("append entries response not sent", "peer", ev.From, "error", err)
			}
		}

	case raft.EventAppendEntriesResponse:
		s.core.HandleAppendEntriesResponse(ev.From, ev.AppendEntriesResp)

	case raft.EventRequestVoteRequest:
		if resp := s.core.HandleRequestVoteRequest(ev.From, ev.RequestVoteReq); resp != nil {
			if err := s.transport.RespondRequestVote(ev.From, ev.Seq, resp); err != nil {
				s.logger.Warn("request vote response not sent", "peer", ev.From, "error", err)
			}
		}

	case raft.EventRequestVoteResponse:
		s.core.HandleRequestVoteResponse(ev.From, ev.RequestVoteResp)
	}
}
