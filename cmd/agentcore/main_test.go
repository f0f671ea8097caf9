package main

import "testing"

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"serve", "mcp", "validate-config"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestMcpCmd_HasStatusAndToolsSubcommands(t *testing.T) {
	cmd := buildMcpCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	if !names["status"] || !names["tools"] {
		t.Fatalf("expected status and tools subcommands, got %v", names)
	}
}

func TestValidateConfigCmd_RejectsUnknownKind(t *testing.T) {
	if err := runValidateConfig("/nonexistent", "bogus"); err == nil {
		t.Fatal("expected error for unknown --kind")
	}
}
