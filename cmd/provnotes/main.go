package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hurttlocker/provnotes/internal/clean"
	"github.com/hurttlocker/provnotes/internal/config"
	"github.com/hurttlocker/provnotes/internal/extract"
	"github.com/hurttlocker/provnotes/internal/pipeline"
	"github.com/hurttlocker/provnotes/internal/registry"
)

const version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries the global flags and the logger shared by every command.
type app struct {
	configPath       string
	catalogPath      string
	dbPath           string
	envFile          string
	verbose          bool
	keepUnclassified bool

	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}

	rootCmd := &cobra.Command{
		Use:   "provnotes",
		Short: "Clean telecom provisioning notes and extract technical fields",
		Long: `provnotes denoises the free-form notes column of provisioning exports
(router/ONU dumps, ticket annotations) and extracts structured fields such as
serial numbers, VLANs, IP addresses, ASNs and Wi-Fi credentials, weighted by
each record's product group.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ~/.provnotes/config.yaml)")
	flags.StringVar(&a.catalogPath, "catalog", "", "product-group catalog YAML (default: embedded catalog)")
	flags.StringVar(&a.dbPath, "db", "", "run history database (default ~/.provnotes/runs.db)")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before resolving configuration")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	flags.BoolVar(&a.keepUnclassified, "keep-unclassified", false, "keep lines that are neither noise nor meaningful")

	rootCmd.AddCommand(createRunCmd(a))
	rootCmd.AddCommand(createCleanCmd(a))
	rootCmd.AddCommand(createExtractCmd(a))
	rootCmd.AddCommand(createGroupsCmd(a))
	rootCmd.AddCommand(createRunsCmd(a))
	rootCmd.AddCommand(createShowCmd(a))
	rootCmd.AddCommand(createMCPCmd(a))
	rootCmd.AddCommand(createVersionCmd())

	return rootCmd
}

func (a *app) setup() error {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return err
	}
	var (
		logger *zap.Logger
		err    error
	)
	if a.verbose {
		logger, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		logger, err = cfg.Build()
	}
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	a.logger = logger
	return nil
}

// settings resolves configuration with the global flags folded into opts.
func (a *app) settings(opts config.ResolveOptions) (config.Settings, error) {
	opts.ConfigPath = a.configPath
	opts.CLICatalogPath = a.catalogPath
	opts.CLIDBPath = a.dbPath

	resolved, err := config.ResolveConfig(opts)
	if err != nil {
		return config.Settings{}, err
	}
	s, err := resolved.Settings()
	if err != nil {
		return config.Settings{}, err
	}
	a.logger.Debug("configuration resolved",
		zap.String("config", resolved.ConfigPath),
		zap.Any("values", resolved))
	return s, nil
}

func (a *app) processor(s config.Settings) (*pipeline.Processor, error) {
	reg, err := registry.Load(s.CatalogPath, registry.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	opts := []pipeline.Option{
		pipeline.WithLogger(a.logger),
		pipeline.WithExtractorOptions(
			extract.WithThreshold(s.Threshold),
			extract.WithLongPatternBonus(s.LongPatternBonus),
		),
	}
	if a.keepUnclassified {
		opts = append(opts, pipeline.WithCleanerOptions(clean.WithKeepUnclassified()))
	}
	return pipeline.NewProcessor(reg, opts...), nil
}

func createVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "provnotes %s\n", version)
		},
	}
}
