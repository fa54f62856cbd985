package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) eraseCommand() *cobra.Command {
	var (
		block int
		all   bool
	)
	cmd := &cobra.Command{
		Use:   "erase",
		Short: "Erase one block or the whole device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if block < 0 && !all {
				return errors.New("either --block or --all is required")
			}
			ctx := cmd.Context()

			d, err := c.open(progress(256))
			if err != nil {
				return err
			}
			defer d.Close()

			if all {
				return d.Flash.EraseDevice(ctx)
			}
			if err := d.Flash.EraseBlock(ctx, uint32(block)); err != nil {
				return err
			}
			if err := d.Flash.AwaitNotBusy(ctx); err != nil {
				return err
			}
			sr, err := d.Flash.ReadStatus()
			if err != nil {
				return err
			}
			if sr.EraseFailed() {
				return fmt.Errorf("erase block %d failed: %s", block, sr)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&block, "block", "b", -1, "block to erase")
	cmd.Flags().BoolVar(&all, "all", false, "erase the whole device")
	return cmd
}
