package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/hlsd/internal/domain"
)

type inspectOutput struct {
	ID        string            `json:"id"`
	OnDisk    domain.HLSState   `json:"on_disk"`
	Persisted *domain.MediaItem `json:"persisted,omitempty"`
}

func newInspectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <media-id>",
		Short: "Show the on-disk HLS state of an item next to its stored fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			id := args[0]
			if err := domain.ValidateID(id); err != nil {
				return err
			}
			runCtx := cmd.Context()

			a, err := newApp(runCtx, cfg, appOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.WithoutCancel(runCtx)) }()

			out := inspectOutput{ID: id, OnDisk: a.hls.Inspect(id)}
			item, err := a.hls.Status(runCtx, id)
			switch {
			case err == nil:
				out.Persisted = &item
			case !errors.Is(err, domain.ErrNotFound):
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("write inspection: %w", err)
			}
			return nil
		},
	}
}
