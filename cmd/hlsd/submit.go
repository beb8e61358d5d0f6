package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bnema/hlsd/internal/domain"
	"github.com/bnema/hlsd/internal/infrastructure/logger"
	"github.com/bnema/hlsd/internal/service"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var duration int

	cmd := &cobra.Command{
		Use:   "submit <media-id> <source-path>",
		Short: "Register a source file and encode it to HLS",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			id := args[0]
			if err := domain.ValidateID(id); err != nil {
				return err
			}
			source, err := filepath.Abs(args[1])
			if err != nil {
				return fmt.Errorf("resolve source path: %w", err)
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

			if duration <= 0 {
				if probed, err := a.prober.ProbeDuration(runCtx, source); err == nil {
					duration = probed
				} else {
					a.logger.Warn("duration probe failed", "source", logger.SanitizeForLog(source), "error", err)
				}
			}

			if _, err := a.store.Get(runCtx, id); errors.Is(err, domain.ErrNotFound) {
				if err := a.store.Save(runCtx, domain.NewMediaItem(id, source, duration)); err != nil {
					return fmt.Errorf("save media item: %w", err)
				}
			} else if err != nil {
				return fmt.Errorf("get media item: %w", err)
			}

			if result := a.hls.Submit(runCtx, id, source, duration); result != service.SubmitAccepted {
				return fmt.Errorf("submit %s: %s", id, result)
			}

			if err := a.hls.WaitIdle(runCtx); err != nil {
				return err
			}

			item, err := a.hls.Status(runCtx, id)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(item); err != nil {
				return fmt.Errorf("write status: %w", err)
			}
			if item.HLSStatus == domain.HLSStatusFailed {
				return fmt.Errorf("encode failed: %s", item.HLSError)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&duration, "duration", 0, "Known source duration in seconds (probed when 0)")
	return cmd
}
