package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/KilimcininKorOglu/sal/internal/config"
)

// configCmd handles the config command.
func configCmd(args []string) int {
	if len(args) < 1 {
		printConfigUsage(os.Stdout)
		return 1
	}

	switch args[0] {
	case "validate":
		return configValidateCmd(args[1:])
	case "-h", "--help":
		printConfigUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", args[0])
		return 1
	}
}

// configValidateCmd parses and validates a configuration file.
func configValidateCmd(args []string) int {
	fs := flag.NewFlagSet("config validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	configFile := fs.String("config", "", "Path to configuration file")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *configFile == "" {
		fmt.Fprintln(os.Stderr, "Error: -config is required")
		return 1
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid: %v\n", err)
		return 1
	}

	fmt.Printf("OK: node %d, cluster size %d, %d peers\n",
		cfg.Node.ID, cfg.Cluster.Size, len(cfg.Cluster.Peers))
	return 0
}
