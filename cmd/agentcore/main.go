// Command agentcore drives the LLM agent orchestrator: connects a fleet of
// MCP-style tool-provider subprocesses, runs a Conversation Engine turn per
// line of stdin, and exposes fleet/config inspection subcommands.
//
// Usage:
//
//	agentcore serve --fleet fleet.yaml --ai ai.yaml
//	agentcore mcp status --fleet fleet.yaml
//	agentcore mcp tools --fleet fleet.yaml
//	agentcore validate-config fleet.yaml
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "agentcore",
		Short:        "agentcore - LLM agent orchestrator",
		Long:         "agentcore connects a fleet of tool-provider subprocesses to an LLM backend and runs a verified, tool-using conversation loop.",
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildMcpCmd(),
		buildValidateConfigCmd(),
	)
	return rootCmd
}
