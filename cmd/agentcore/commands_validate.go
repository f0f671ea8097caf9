package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentcore/agentcore/internal/config"
)

func buildValidateConfigCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "validate-config <path>",
		Short: "Load and validate a fleet or AI config document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidateConfig(args[0], kind)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "fleet", `config kind: "fleet" or "ai"`)
	return cmd
}

func runValidateConfig(path, kind string) error {
	switch kind {
	case "fleet":
		fleetCfg, err := config.LoadFleetConfig(path)
		if err != nil {
			return fmt.Errorf("invalid fleet config: %w", err)
		}
		if _, err := fleetCfg.ToServerConfigs(); err != nil {
			return fmt.Errorf("invalid fleet config: %w", err)
		}
		fmt.Printf("%s: valid, %d server(s)\n", path, len(fleetCfg.Servers))
	case "ai":
		aiCfg, err := config.LoadAIConfig(path)
		if err != nil {
			return fmt.Errorf("invalid ai config: %w", err)
		}
		if aiCfg.DefaultProvider != "" {
			if _, ok := aiCfg.Providers[aiCfg.DefaultProvider]; !ok {
				return fmt.Errorf("invalid ai config: default_provider %q has no matching entry under providers", aiCfg.DefaultProvider)
			}
		}
		fmt.Printf("%s: valid, %d provider(s)\n", path, len(aiCfg.Providers))
	default:
		return fmt.Errorf(`unknown --kind %q, want "fleet" or "ai"`, kind)
	}
	return nil
}
