package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"github.com/agentcore/agentcore/internal/config"
	"github.com/agentcore/agentcore/internal/mcpfleet"
)

func buildMcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Inspect the tool-provider fleet",
	}
	cmd.AddCommand(buildMcpStatusCmd(), buildMcpToolsCmd())
	return cmd
}

func buildMcpStatusCmd() *cobra.Command {
	var fleetPath string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Connect the fleet and print each server's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			fleet, err := connectFleet(cmd.Context(), fleetPath)
			if err != nil {
				return err
			}
			defer fleet.Shutdown()

			snap := fleet.StatusSnapshot()
			names := make([]string, 0, len(snap))
			for name := range snap {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				s := snap[name]
				if s.LastError != "" {
					fmt.Printf("%s\t%s\t%s\n", s.Name, s.Status, s.LastError)
				} else {
					fmt.Printf("%s\t%s\n", s.Name, s.Status)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fleetPath, "fleet", "fleet.yaml", "path to the fleet config document")
	return cmd
}

func buildMcpToolsCmd() *cobra.Command {
	var fleetPath string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Connect the fleet and print the aggregated tool catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			fleet, err := connectFleet(cmd.Context(), fleetPath)
			if err != nil {
				return err
			}
			defer fleet.Shutdown()

			all := fleet.AllTools()
			servers := make([]string, 0, len(all))
			for name := range all {
				servers = append(servers, name)
			}
			sort.Strings(servers)
			for _, server := range servers {
				for _, t := range all[server] {
					fmt.Printf("%s\t%s\t%s\n", server, t.Name, t.Description)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fleetPath, "fleet", "fleet.yaml", "path to the fleet config document")
	return cmd
}

func connectFleet(ctx context.Context, fleetPath string) (*mcpfleet.Manager, error) {
	fleetCfg, err := config.LoadFleetConfig(fleetPath)
	if err != nil {
		return nil, fmt.Errorf("load fleet config: %w", err)
	}
	serverConfigs, err := fleetCfg.ToServerConfigs()
	if err != nil {
		return nil, fmt.Errorf("fleet config: %w", err)
	}
	fleet := mcpfleet.NewManager(serverConfigs, slog.Default())
	fleet.ConnectAll(ctx)
	return fleet, nil
}
