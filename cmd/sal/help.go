package main

import (
	"fmt"
	"io"
)

// printUsage prints the main usage information to the given writer.
func printUsage(w io.Writer) {
	fmt.Fprint(w, `sal - Replicated dynamic node-ID allocation server

Usage:
  sal <command> [options]

Commands:
  serve       Start the consensus server
  config      Configuration management
  version     Show version information

Use "sal <command> -h" for more information about a command.
`)
}

// printServeUsage prints the serve command usage.
func printServeUsage(w io.Writer) {
	fmt.Fprint(w, `Start the consensus server

Usage:
  sal serve [options]

Options:
  -config string
        Path to configuration file (required)
  -listen string
        UDP listen address (overrides node.listen from the config file)
`)
}

// printConfigUsage prints the config command usage.
func printConfigUsage(w io.Writer) {
	fmt.Fprint(w, `Configuration management

Usage:
  sal config validate -config <file>
`)
}

// printVersionUsage prints the version command usage.
func printVersionUsage(w io.Writer) {
	fmt.Fprint(w, `Show version information

Usage:
  sal version [-short]
`)
}
