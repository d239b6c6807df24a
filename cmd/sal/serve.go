// Package main provides the serve command for the sal allocation server.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/KilimcininKorOglu/sal/internal/config"
	"github.com/KilimcininKorOglu/sal/internal/logging"
	"github.com/KilimcininKorOglu/sal/internal/raft"
	"github.com/KilimcininKorOglu/sal/internal/server"
	"github.com/KilimcininKorOglu/sal/internal/storage"
)

// serveCmd handles the serve command.
func serveCmd(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	configFile := fs.String("config", "", "Path to configuration file")
	listen := fs.String("listen", "", "UDP listen address override")
	help := fs.Bool("h", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *help {
		printServeUsage(os.Stdout)
		return 0
	}

	if *configFile == "" {
		fmt.Fprintln(os.Stderr, "Error: -config is required")
		printServeUsage(os.Stderr)
		return 1
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *listen != "" {
		cfg.Node.Listen = *listen
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	if err := serve(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		return 1
	}
	return 0
}

// serve wires storage, transport, core and event loop together and blocks
// until a termination signal arrives.
func serve(cfg *config.Config, logger logging.Logger) error {
	backend, err := storage.OpenBolt(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer backend.Close()

	peers := make(map[raft.NodeID]string, len(cfg.Cluster.Peers))
	peerIDs := make([]raft.NodeID, 0, len(cfg.Cluster.Peers))
	for _, p := range cfg.Cluster.Peers {
		peers[raft.NodeID(p.ID)] = p.Addr
		peerIDs = append(peerIDs, raft.NodeID(p.ID))
	}

	transport, err := raft.NewUDPTransport(raft.NodeID(cfg.Node.ID), cfg.Node.Listen, peers)
	if err != nil {
		return err
	}
	defer transport.Close()

	core, err := raft.NewCore(&raft.CoreConfig{
		SelfID:              raft.NodeID(cfg.Node.ID),
		Backend:             backend,
		Caller:              transport,
		Tracer:              raft.NewLogTracer(logger),
		Monitor:             &logMonitor{logger: logger},
		Logger:              logger,
		UpdateInterval:      cfg.Node.UpdateInterval.Std(),
		BaseActivityTimeout: cfg.Node.BaseActivityTimeout.Std(),
		ClusterSize:         cfg.Cluster.Size,
		Peers:               peerIDs,
	})
	if err != nil {
		return err
	}

	srv := server.New(core, transport, cfg.Node.UpdateInterval.Std(), logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", "signal", sig.String())
		srv.Stop()
	}()

	logger.Info("sal server starting",
		"node", cfg.Node.ID,
		"listen", cfg.Node.Listen,
		"clusterSize", cfg.Cluster.Size)

	return srv.Run()
}

// logMonitor is the stand-in leader monitor used when no allocation layer
// is attached: it only reports commits and leadership changes.
type logMonitor struct {
	logger logging.Logger
}

func (m *logMonitor) OnLogCommit(entry raft.Entry) {
	m.logger.Info("entry committed",
		"term", entry.Term,
		"allocatedNodeId", uint8(entry.NodeID),
		"uniqueId", fmt.Sprintf("%x", entry.UniqueID))
}

func (m *logMonitor) OnLeadershipChange(isLeader bool) {
	m.logger.Info("leadership change", "isLeader", isLeader)
}
