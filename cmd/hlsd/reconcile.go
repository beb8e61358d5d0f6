package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	var noWait bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild stored HLS state from disk and re-run unfinished encodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx := cmd.Context()

			a, err := newApp(runCtx, cfg, appOptions{exclusive: true})
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), shutdownTimeout)
				defer cancel()
				_ = a.Close(closeCtx)
			}()

			report, err := a.hls.ReconcileAll(runCtx)
			if err != nil {
				return err
			}
			if !noWait && report.Resubmitted > 0 {
				if err := a.hls.WaitIdle(runCtx); err != nil {
					return err
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Return once items are queued instead of waiting for their encodes")
	return cmd
}
