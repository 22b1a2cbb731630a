package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"notion-helper/lib/notion"
	"notion-helper/lib/telemetry"
	"notion-helper/lib/timezone"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

// set by the root command before any subcommand runs
var state *app

var rootCmd = &cobra.Command{
	Use:   "notion-helper",
	Short: "notion-helper keeps notion databases filled from the web.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		telemetry.InitSlog(verbose || cfg.Debug)
		state, err = newApp(cfg)
		return err
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "notion-helper.json5", "The configuration file to read.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var errUnknownJob = errors.New("unknown job")

type app struct {
	cfg    Config
	notion *notion.Client
	clock  timezone.Clock
}

func newApp(cfg Config) (*app, error) {
	clientConfig, err := cfg.notionConfig()
	if err != nil {
		return nil, err
	}
	client, err := notion.NewClient(clientConfig)
	if err != nil {
		return nil, err
	}
	loc, err := timezone.Load(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return &app{
		cfg:    cfg,
		notion: client,
		clock:  timezone.NewClock(loc),
	}, nil
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
