package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/gentam/w25n/internal/config"
)

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}

// cli holds the state shared by all subcommands.
type cli struct {
	configFile string
	sim        bool
	verbose    bool

	cfg *config.Config
}

func main() {
	c := &cli{}
	root := &cobra.Command{
		Use:           "w25n",
		Short:         "Program and inspect W25N04KV serial NAND flash",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return c.setup()
		},
	}
	root.PersistentFlags().StringVar(&c.configFile, "config", "", "YAML configuration file")
	root.PersistentFlags().BoolVar(&c.sim, "sim", false, "use an in-memory simulated chip")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log every flash instruction")

	root.AddCommand(
		c.idCommand(),
		c.statusCommand(),
		c.readCommand(),
		c.writeCommand(),
		c.eraseCommand(),
		c.scanCommand(),
		c.testCommand(),
		c.infoCommand(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fatalf("%v", err)
	}
}

func (c *cli) setup() error {
	cfg := &config.Config{}
	if c.configFile != "" {
		var err error
		if cfg, err = config.Load(c.configFile); err != nil {
			return fmt.Errorf("config load failed: %w", err)
		}
	}
	if c.sim {
		cfg.Bus.Driver = "sim"
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	config.Normalize(cfg)
	c.cfg = cfg

	level := cfg.LogLevel()
	if c.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}
