package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <request-id>",
		Short: "Show the status of a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			res, err := cli.Status(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Request:  %s\n", res.RequestID)
			fmt.Fprintf(out, "Status:   %s\n", colorStatus(out, res.Status))
			if res.Progress != nil {
				fmt.Fprintf(out, "Progress: %.0f%%\n", *res.Progress*100)
			}
			if res.Error != "" {
				fmt.Fprintf(out, "Error:    %s\n", res.Error)
			}
			if path, ok := res.Result["output_path"].(string); ok && path != "" {
				fmt.Fprintf(out, "Output:   %s\n", path)
			}
			fmt.Fprintf(out, "Updated:  %s\n", res.UpdatedAt)
			return nil
		},
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var (
		clientFlag string
		statusFlag string
		limitFlag  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			res, err := cli.List(clientFlag, statusFlag, limitFlag)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(res.Requests) == 0 {
				fmt.Fprintln(out, "No requests found.")
				return nil
			}

			fmt.Fprintln(out, renderRequestTable(out, res.Requests))
			return nil
		},
	}

	cmd.Flags().StringVar(&clientFlag, "client-id", "", "Filter by client identifier")
	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by status")
	cmd.Flags().IntVar(&limitFlag, "limit", 0, "Maximum number of requests to show")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <request-id>",
		Short: "Cancel a pending or running request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			res, err := cli.Cancel(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Request %s is now %s\n", res.RequestID, res.Status)
			return nil
		},
	}
}

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var outputFlag string

	cmd := &cobra.Command{
		Use:   "download <request-id>",
		Short: "Download the processed audio for a completed request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			dest, err := cli.Download(args[0], outputFlag)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", dest)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Destination path for the artifact")
	return cmd
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show daemon health and request counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			res, err := cli.Health()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Daemon:     %s\n", res.Status)
			fmt.Fprintf(out, "Total:      %d\n", res.Requests.Total)
			fmt.Fprintf(out, "Submitted:  %d\n", res.Requests.Submitted)
			fmt.Fprintf(out, "Processing: %d\n", res.Requests.Processing)
			fmt.Fprintf(out, "Completed:  %d\n", res.Requests.Completed)
			fmt.Fprintf(out, "Failed:     %d\n", res.Requests.Failed)
			fmt.Fprintf(out, "Cancelled:  %d\n", res.Requests.Cancelled)
			return nil
		},
	}
}
