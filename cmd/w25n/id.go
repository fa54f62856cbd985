package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) idCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "id",
		Short: "Print the flash JEDEC ID",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			d, err := c.open()
			if err != nil {
				return err
			}
			defer d.Close()

			id, name, err := d.Flash.ReadID()
			if err != nil {
				return fmt.Errorf("read flash ID failed: %w", err)
			}
			fmt.Printf("%X\t%s\n", id, name)
			return nil
		},
	}
}

func (c *cli) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the three status registers",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			d, err := c.open()
			if err != nil {
				return err
			}
			defer d.Close()

			pr, err := d.Flash.ReadProtection()
			if err != nil {
				return err
			}
			cr, err := d.Flash.ReadConfiguration()
			if err != nil {
				return err
			}
			sr, err := d.Flash.ReadStatus()
			if err != nil {
				return err
			}
			fmt.Printf("SR1 protection:    %s\n", pr)
			fmt.Printf("SR2 configuration: %s\n", cr)
			fmt.Printf("SR3 status:        %s\n", sr)
			return nil
		},
	}
}
