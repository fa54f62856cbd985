package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gentam/w25n/internal/harness"
)

func (c *cli) testCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "test <diagnostic> [args]",
		Short: "Run an on-device diagnostic (test help lists them)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"help"}
			}

			d, err := c.open(progress(256))
			if err != nil {
				return err
			}
			defer d.Close()

			h := harness.New(d.Flash, os.Stdout, slog.Default())
			failures, err := h.Run(cmd.Context(), args[0], args[1:])
			if errors.Is(err, harness.ErrUnknownCommand) {
				return fmt.Errorf("%w (available: %v)", err, h.Names())
			}
			for _, f := range failures {
				fmt.Fprintln(os.Stderr, f)
			}
			return err
		},
	}
}
