// Command tidytune simulates, cleans and models symptom data: every model
// family is tuned by repeated cross-validation, the best configuration of
// each is refit on the training partition and scored on the test partition.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/tidytune/internal/config"
	"github.com/YuminosukeSato/tidytune/pkg/log"
)

type app struct {
	configFile string
	logLevel   string
	logFile    string

	cfg    *config.Config
	logger log.Logger
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if cmd.Flags().Changed("log-file") {
		cfg.Log.File = a.logFile
	}
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}

	var opts []log.ProviderOption
	if cfg.Log.Console {
		opts = append(opts, log.WithConsole())
	}
	if cfg.Log.File != "" {
		opts = append(opts, log.WithFile(cfg.Log.File))
	}
	provider := log.NewZerologProvider(level, opts...)
	provider.ForwardWarnings()
	log.SetProvider(provider)

	a.cfg = cfg
	a.logger = provider.GetLoggerWithName("tidytune")
	return nil
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:               "tidytune",
		Short:             "compare tuned model families on symptom data",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "debug, info, warn or error")
	root.PersistentFlags().StringVar(&a.logFile, "log-file", "", "also write JSON logs to a rotated file")

	root.AddCommand(
		newSimulateCmd(a),
		newCleanCmd(a),
		newTuneCmd(a),
		newReportCmd(a),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
