package schema

import (
	"testing"

	"github.com/spf13/cobra"
)

func testTree() *cobra.Command {
	root := &cobra.Command{Use: "mina"}
	root.PersistentFlags().Bool("json", false, "machine-readable output")
	quote := &cobra.Command{Use: "quote", Short: "price a bridge into HyperEVM"}
	quote.Flags().String("amount", "", "amount in human units")
	quote.Flags().String("token", "", "token symbol or address")
	config := &cobra.Command{Use: "config", Short: "manage stored preferences"}
	config.AddCommand(&cobra.Command{Use: "set <key> <value>", Short: "set a config key"})
	debug := &cobra.Command{Use: "debug", Hidden: true}
	root.AddCommand(quote, config, debug)
	return root
}

func TestBuildResolvesNestedPath(t *testing.T) {
	s, err := Build(testTree(), "config set")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if s.Path != "mina config set" {
		t.Fatalf("unexpected path: %s", s.Path)
	}
	if s.Use != "set <key> <value>" {
		t.Fatalf("unexpected use line: %s", s.Use)
	}
}

func TestBuildCollectsLocalFlags(t *testing.T) {
	s, err := Build(testTree(), "quote")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(s.Flags) != 2 || s.Flags[0].Name != "amount" || s.Flags[0].Type != "string" {
		t.Fatalf("unexpected flags: %+v", s.Flags)
	}
	if len(s.GlobalFlags) != 1 || s.GlobalFlags[0].Name != "json" {
		t.Fatalf("inherited flags missing: %+v", s.GlobalFlags)
	}
}

func TestBuildSkipsHiddenCommands(t *testing.T) {
	s, err := Build(testTree(), "")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(s.Subcommands) != 2 {
		t.Fatalf("hidden commands should be omitted: %+v", s.Subcommands)
	}
	for _, sub := range s.Subcommands {
		if sub.Path == "mina debug" {
			t.Fatalf("hidden command leaked into the schema: %+v", sub)
		}
	}
}

func TestBuildUnknownPathFails(t *testing.T) {
	if _, err := Build(testTree(), "stake"); err == nil {
		t.Fatal("expected error for unknown command path")
	}
}
