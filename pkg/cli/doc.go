// Package cli provides the building blocks of the nova command line.
//
// This package includes:
//   - Configuration management with kubectl-style contexts
//   - Output formatting (JSON, YAML, raw) with optional jq filtering
//   - Request file loading (YAML/JSON)
//   - A lipgloss frame renderer for the live voice view
//
// Configuration is stored in ~/.giztoy/nova/config.yaml.
//
// Example usage:
//
//	cfg, err := cli.LoadConfig(cli.AppName)
//	ctx, err := cfg.ResolveContext("")
//
//	cli.Output(sessions, cli.OutputOptions{
//	    Format: cli.FormatJSON,
//	    Query:  ".[].title",
//	})
package cli
