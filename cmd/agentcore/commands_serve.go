package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentcore/agentcore/internal/config"
	"github.com/agentcore/agentcore/internal/conversation"
	"github.com/agentcore/agentcore/internal/engine"
	"github.com/agentcore/agentcore/internal/llm"
	"github.com/agentcore/agentcore/internal/mcpfleet"
	"github.com/agentcore/agentcore/internal/metrics"
)

func buildServeCmd() *cobra.Command {
	var fleetPath, aiPath, provider string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect the fleet and run an interactive conversation loop over stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), fleetPath, aiPath, provider)
		},
	}
	cmd.Flags().StringVar(&fleetPath, "fleet", "fleet.yaml", "path to the fleet config document")
	cmd.Flags().StringVar(&aiPath, "ai", "ai.yaml", "path to the AI config document")
	cmd.Flags().StringVar(&provider, "provider", "", "override the AI config's default_provider")
	return cmd
}

func runServe(ctx context.Context, fleetPath, aiPath, providerOverride string) error {
	logger := slog.Default()

	fleetCfg, err := config.LoadFleetConfig(fleetPath)
	if err != nil {
		return fmt.Errorf("load fleet config: %w", err)
	}
	serverConfigs, err := fleetCfg.ToServerConfigs()
	if err != nil {
		return fmt.Errorf("fleet config: %w", err)
	}

	aiCfg, err := config.LoadAIConfig(aiPath)
	if err != nil {
		return fmt.Errorf("load ai config: %w", err)
	}
	client, err := buildClient(aiCfg, providerOverride)
	if err != nil {
		return fmt.Errorf("build model client: %w", err)
	}

	fleet := mcpfleet.NewManager(serverConfigs, logger)
	connected := fleet.ConnectAll(ctx)
	logger.Info("fleet connected", "servers", connected, "configured", len(serverConfigs))
	defer fleet.Shutdown()

	state := conversation.New(logger)
	reg := metrics.NewRegistry(nil)
	eng := engine.New(client, fleet, state, reg, logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("agentcore ready. Type a message and press enter; Ctrl-D to exit.")
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		out, err := eng.ProcessUserMessage(ctx, line)
		if err != nil {
			fmt.Printf("(%v)\n", err)
			continue
		}
		fmt.Println(out)
	}
	return scanner.Err()
}

func buildClient(aiCfg *config.AIConfig, providerOverride string) (llm.Client, error) {
	name := aiCfg.DefaultProvider
	if providerOverride != "" {
		name = providerOverride
	}
	providerCfg, ok := aiCfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("no provider configured under name %q", name)
	}

	switch providerCfg.ProviderKind {
	case "anthropic":
		return llm.NewAnthropicClient(llm.AnthropicConfig{
			APIKey:      providerCfg.APIKey,
			APIKeyEnv:   providerCfg.APIKeyEnv,
			Model:       providerCfg.Model,
			Temperature: providerCfg.Temperature,
		})
	case "openai":
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:      providerCfg.APIKey,
			APIKeyEnv:   providerCfg.APIKeyEnv,
			Model:       providerCfg.Model,
			Temperature: float32(providerCfg.Temperature),
		})
	default:
		return nil, fmt.Errorf("unknown provider_kind %q for provider %q", providerCfg.ProviderKind, name)
	}
}
