package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/agentcore/qcode/pkg/agentcore"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "Show discovered backends, their health, and their models",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := context.Background()
		core, err := agentcore.New(ctx, agentcore.Options{Config: cfg, WorkingDirectory: workingDirectory})
		if err != nil {
			return err
		}
		defer core.Close()

		names := make([]string, 0)
		status := core.Backends.StatusSummary()
		for name := range status {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			info := status[name]
			fmt.Printf("%-12s status=%-12s model=%s\n", name, info.Status, info.Model)
		}
		return nil
	},
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List every registered local and MCP tool",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := context.Background()
		core, err := agentcore.New(ctx, agentcore.Options{Config: cfg, WorkingDirectory: workingDirectory})
		if err != nil {
			return err
		}
		defer core.Close()

		for _, name := range core.Registry.List() {
			fmt.Println(name)
		}
		return nil
	},
}
