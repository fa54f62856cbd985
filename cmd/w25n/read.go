package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gentam/w25n"
)

func (c *cli) readCommand() *cobra.Command {
	var (
		page    uint32
		nread   int
		column  uint16
		mode    string
		outFile string
	)
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read pages, or part of one page buffer with --column/--mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rm, err := w25n.ParseReadMode(mode)
			if err != nil {
				return err
			}
			if nread < 0 {
				return errors.New("--length must not be negative")
			}
			bufferRead := cmd.Flags().Changed("column") || cmd.Flags().Changed("mode")
			if bufferRead && int(column)+nread > w25n.BufferSize {
				return fmt.Errorf("--column and --length must stay within the %d byte buffer", w25n.BufferSize)
			}
			ctx := cmd.Context()

			d, err := c.open()
			if err != nil {
				return err
			}
			defer d.Close()

			var data []byte
			if bufferRead {
				if err := d.Flash.ReadPage(ctx, page); err != nil {
					return fmt.Errorf("read page failed: %w", err)
				}
				data = make([]byte, nread)
				if err := d.Flash.ReadBuffer(ctx, rm, column, data); err != nil {
					return fmt.Errorf("read buffer failed: %w", err)
				}
			} else if data, err = d.Flash.Read(ctx, page, nread); err != nil {
				return fmt.Errorf("read flash failed: %w", err)
			}

			if outFile == "" {
				fmt.Println(hex.Dump(data))
				return nil
			}
			return os.WriteFile(outFile, data, 0644)
		},
	}
	cmd.Flags().Uint32VarP(&page, "page", "p", 0, "first page")
	cmd.Flags().IntVarP(&nread, "length", "n", 256, "number of bytes to read")
	cmd.Flags().Uint16VarP(&column, "column", "c", 0, "start column within the page buffer")
	cmd.Flags().StringVar(&mode, "mode", w25n.ReadStandard.String(),
		"buffer read mode (standard, fast, fast-dual, fast-dual-io, fast-quad, fast-quad-io)")
	cmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (default: hexdump)")
	return cmd
}
