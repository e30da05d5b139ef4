package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		operationFlags []string
		textFlag       string
		uploadFlag     bool
		clientFlag     string
		priorityFlag   string
		descFlag       string
	)

	cmd := &cobra.Command{
		Use:   "submit <audio-file>",
		Short: "Submit an audio editing request",
		Long: `Submit an audio editing request to the daemon.

Operations are given either explicitly with repeated --op flags or as
natural language with --text. Each --op takes the form
name or name:key=value,key=value.

Examples:
  waveq submit song.wav --op trim:start_time=2,end_time=30 --op normalize
  waveq submit song.wav --text "normalize to -20 dB and add a 2 second fade in"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(operationFlags) == 0 && textFlag == "" {
				return fmt.Errorf("either --op or --text is required")
			}
			if len(operationFlags) > 0 && textFlag != "" {
				return fmt.Errorf("--op and --text are mutually exclusive")
			}

			cli, err := ctx.ensureClient()
			if err != nil {
				return err
			}

			path := args[0]
			operations, err := parseOperationFlags(operationFlags)
			if err != nil {
				return err
			}

			var res *submitResponse
			if uploadFlag {
				var opsJSON string
				if len(operations) > 0 {
					encoded, err := json.Marshal(operations)
					if err != nil {
						return err
					}
					opsJSON = string(encoded)
				}
				res, err = cli.SubmitUpload(path, opsJSON, textFlag, clientFlag, priorityFlag, descFlag)
			} else {
				abs := path
				if info, statErr := os.Stat(path); statErr == nil && !info.IsDir() {
					if resolved, absErr := absolutePath(path); absErr == nil {
						abs = resolved
					}
				}
				res, err = cli.SubmitPath(abs, operations, textFlag, clientFlag, priorityFlag, descFlag)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Request %s submitted\n", res.RequestID)
			fmt.Fprintf(out, "Chain: %s\n", strings.Join(res.Operations, " -> "))
			if res.Confidence > 0 {
				fmt.Fprintf(out, "Confidence: %.2f\n", res.Confidence)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&operationFlags, "op", nil, "Operation to apply, repeatable (name:key=value,...)")
	cmd.Flags().StringVar(&textFlag, "text", "", "Natural language description of the edit")
	cmd.Flags().BoolVar(&uploadFlag, "upload", false, "Upload the file instead of referencing a daemon-visible path")
	cmd.Flags().StringVar(&clientFlag, "client-id", "", "Client identifier attached to the request")
	cmd.Flags().StringVar(&priorityFlag, "priority", "normal", "Request priority")
	cmd.Flags().StringVar(&descFlag, "description", "", "Free-form request description")
	return cmd
}

func absolutePath(path string) (string, error) {
	if strings.HasPrefix(path, "/") {
		return path, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return wd + "/" + path, nil
}

// parseOperationFlags turns --op values into wire operation specs. Values
// parse as numbers when they look numeric, otherwise stay strings.
func parseOperationFlags(flags []string) ([]map[string]any, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	ops := make([]map[string]any, 0, len(flags))
	for _, raw := range flags {
		name, paramsPart, _ := strings.Cut(raw, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("empty operation in %q", raw)
		}
		params := make(map[string]any)
		if paramsPart != "" {
			for _, pair := range strings.Split(paramsPart, ",") {
				key, value, ok := strings.Cut(pair, "=")
				if !ok || strings.TrimSpace(key) == "" {
					return nil, fmt.Errorf("malformed parameter %q in %q", pair, raw)
				}
				params[strings.TrimSpace(key)] = coerceValue(strings.TrimSpace(value))
			}
		}
		ops = append(ops, map[string]any{"operation": name, "parameters": params})
	}
	return ops, nil
}

func coerceValue(value string) any {
	var number float64
	if _, err := fmt.Sscanf(value, "%g", &number); err == nil && fmt.Sprintf("%g", number) == value {
		return number
	}
	return value
}
