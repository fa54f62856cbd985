package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"periph.io/x/host/v3/ftdi"
)

func (c *cli) infoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print FTDI adapter details",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if c.cfg.Bus.Driver != "ftdi" {
				return fmt.Errorf("info needs the ftdi bus driver, have %q", c.cfg.Bus.Driver)
			}
			d, err := c.open()
			if err != nil {
				return err
			}
			defer d.Close()
			ft := d.FTDI

			// Reference: https://github.com/periph/cmd/tree/main/ftdi-list
			i := ftdi.Info{}
			ft.Info(&i)
			fmt.Printf("Type:            %s\n", i.Type)
			fmt.Printf("Vendor ID:       %#04x\n", i.VenID)
			fmt.Printf("Device ID:       %#04x\n", i.DevID)

			ee := ftdi.EEPROM{}
			if err := ft.EEPROM(&ee); err != nil {
				return fmt.Errorf("failed to read EEPROM: %w", err)
			}

			fmt.Printf("Manufacturer:    %s\n", ee.Manufacturer)
			fmt.Printf("Desc:            %s\n", ee.Desc)
			fmt.Printf("Serial:          %s\n", ee.Serial)

			h := ee.AsHeader()
			fmt.Printf("MaxPower:        %dmA\n", h.MaxPower)

			for _, p := range ft.Header() {
				fmt.Printf("%s: %s\n", p, p.Function())
			}
			return nil
		},
	}
}
