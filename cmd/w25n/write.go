package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func (c *cli) writeCommand() *cobra.Command {
	var (
		filename  string
		page      uint32
		bulkErase bool
	)
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Program pages from a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if filename == "" && !bulkErase {
				return errors.New("input file is required")
			}
			ctx := cmd.Context()

			var input io.ReadCloser
			if filename != "" {
				f, err := os.Open(filename)
				if err != nil {
					return fmt.Errorf("failed to open file: %w", err)
				}
				defer f.Close()
				input = f
			}

			d, err := c.open(progress(256))
			if err != nil {
				return err
			}
			defer d.Close()

			if bulkErase {
				if err := d.Flash.EraseDevice(ctx); err != nil {
					return fmt.Errorf("erase flash failed: %w", err)
				}
			}
			if input == nil {
				return nil
			}

			n, err := d.Flash.Write(ctx, page, input)
			if err != nil {
				return fmt.Errorf("write flash failed after %d pages: %w", n, err)
			}
			fmt.Printf("%d pages written from page %d\n", n, page)
			return nil
		},
	}
	cmd.Flags().StringVarP(&filename, "file", "f", "", "input file")
	cmd.Flags().Uint32VarP(&page, "page", "p", 0, "first page")
	cmd.Flags().BoolVarP(&bulkErase, "erase", "e", false, "erase entire flash first")
	return cmd
}
