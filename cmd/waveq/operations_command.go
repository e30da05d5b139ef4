package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func newOperationsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "operations",
		Short: "List the audio operations the daemon supports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			ops, err := cli.Operations()
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderOperationTable(ops))
			return nil
		},
	}
}

func formatDefaults(defaults map[string]any) string {
	if len(defaults) == 0 {
		return ""
	}
	keys := make([]string, 0, len(defaults))
	for key := range defaults {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", key, defaults[key]))
	}
	return strings.Join(parts, " ")
}
