package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kodewright/miller/internal/output"
)

// mcpServerEntry is one entry in .mcp.json's mcpServers map, the format
// Claude Code and other MCP-aware editors read to discover local servers.
type mcpServerEntry struct {
	Type    string   `json:"type,omitempty"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Cwd     string   `json:"cwd,omitempty"`
}

type mcpJSON struct {
	MCPServers map[string]mcpServerEntry `json:"mcpServers"`
}

func newInitCmd() *cobra.Command {
	var force bool
	var offline bool
	var configOnly bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize miller for a project",
		Long: `Initialize miller for the current project:

1. Writes .miller.yaml with the resolved configuration.
2. Registers miller as an MCP server in .mcp.json.
3. Runs an initial index, unless --config-only is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runInit(ctx, cmd, force, offline, configOnly)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing .miller.yaml and .mcp.json entry")
	cmd.Flags().BoolVar(&offline, "offline", false, "use static embeddings, skip remote provider")
	cmd.Flags().BoolVar(&configOnly, "config-only", false, "write configuration without indexing")
	return cmd
}

func runInit(ctx context.Context, cmd *cobra.Command, force, offline, configOnly bool) error {
	out := output.New(cmd.OutOrStdout())

	eng, err := bootstrap(ctx, "", offline)
	if err != nil {
		return fmt.Errorf("bootstrap engine: %w", err)
	}
	defer func() { _ = eng.Close() }()

	root := eng.primary.RootPath
	cfgPath := filepath.Join(root, ".miller.yaml")
	if _, statErr := os.Stat(cfgPath); statErr == nil && !force {
		out.Status("", ".miller.yaml already exists, use --force to overwrite")
	} else {
		if err := eng.cfg.WriteYAML(cfgPath); err != nil {
			return fmt.Errorf("write .miller.yaml: %w", err)
		}
		out.Success(fmt.Sprintf("wrote %s", cfgPath))
	}

	registered, err := registerMCPServer(root, force)
	if err != nil {
		return fmt.Errorf("register MCP server: %w", err)
	}
	if registered {
		out.Success(fmt.Sprintf("registered miller in %s", filepath.Join(root, ".mcp.json")))
	} else {
		out.Status("", "miller already registered in .mcp.json")
	}

	if configOnly {
		return nil
	}

	out.Status("", fmt.Sprintf("indexing %s", root))
	result, err := eng.orch.IndexWorkspace(ctx, eng.primary.ID)
	if err != nil {
		return fmt.Errorf("index workspace: %w", err)
	}
	out.Success(fmt.Sprintf("indexed %d files, %d symbols added", result.FilesIndexed, result.Counts.SymbolsAdded))
	out.Status("", "restart your MCP client to pick up the new server")
	return nil
}

// registerMCPServer writes or updates the "miller" entry in .mcp.json,
// pointing at this binary with the serve subcommand. Returns false when an
// entry already exists and force wasn't set.
func registerMCPServer(root string, force bool) (bool, error) {
	mcpPath := filepath.Join(root, ".mcp.json")

	cfg := mcpJSON{MCPServers: make(map[string]mcpServerEntry)}
	if data, err := os.ReadFile(mcpPath); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return false, fmt.Errorf("parse existing .mcp.json: %w", err)
		}
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]mcpServerEntry)
	}

	if _, exists := cfg.MCPServers["miller"]; exists && !force {
		return false, nil
	}

	binPath, err := os.Executable()
	if err != nil {
		return false, fmt.Errorf("locate miller binary: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(binPath); err == nil {
		binPath = resolved
	}

	cfg.MCPServers["miller"] = mcpServerEntry{
		Type:    "stdio",
		Command: binPath,
		Args:    []string{"serve"},
		Cwd:     root,
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return false, fmt.Errorf("marshal .mcp.json: %w", err)
	}
	if err := os.WriteFile(mcpPath, data, 0644); err != nil {
		return false, fmt.Errorf("write .mcp.json: %w", err)
	}
	return true, nil
}
