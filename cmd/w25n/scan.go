package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gentam/w25n"
)

func (c *cli) scanCommand() *cobra.Command {
	var start, end uint32
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Find the head and tail of the packet log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("start") {
				start = c.cfg.Scan.StartPage
			}
			if !cmd.Flags().Changed("end") {
				end = c.cfg.Scan.EndPage
			}

			d, err := c.open(progress(4096))
			if err != nil {
				return err
			}
			defer d.Close()

			buf, err := d.Flash.FindHeadTail(cmd.Context(), start, end)
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}
			fmt.Println(buf)
			if !buf.Empty() {
				fmt.Printf("head page %d, tail page %d, %d bytes\n",
					buf.Head/w25n.PageSize, (buf.Tail-1)/w25n.PageSize, buf.Len())
			}
			return nil
		},
	}
	cmd.Flags().Uint32Var(&start, "start", 0, "first page (default from config)")
	cmd.Flags().Uint32Var(&end, "end", w25n.PageCount, "page after the last one (default from config)")
	return cmd
}
