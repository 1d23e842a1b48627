package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/tidytune/clean"
	"github.com/YuminosukeSato/tidytune/compare"
	"github.com/YuminosukeSato/tidytune/core/model"
	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/pkg/log"
	"github.com/YuminosukeSato/tidytune/report"
	"github.com/YuminosukeSato/tidytune/tune"
)

func newSimulateCmd(a *app) *cobra.Command {
	var rows int
	var seed uint64
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "write a synthetic raw symptom table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("rows") {
				a.cfg.Data.Rows = rows
			}
			if cmd.Flags().Changed("seed") {
				a.cfg.Data.Seed = seed
			}
			t, err := dataset.SimulateSymptoms(a.cfg.Data.Rows, a.cfg.Data.Seed)
			if err != nil {
				return err
			}
			if err := dataset.SaveFile(a.cfg.Data.Raw, t); err != nil {
				return err
			}
			a.logger.Info("simulated symptom table",
				"path", a.cfg.Data.Raw,
				log.SamplesKey, t.NRows(),
				log.RandomSeedKey, a.cfg.Data.Seed,
			)
			return nil
		},
	}
	cmd.Flags().IntVar(&rows, "rows", 730, "number of visits")
	cmd.Flags().Uint64Var(&seed, "seed", 2021, "random seed")
	return cmd
}

func newCleanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "clean the raw table for modeling",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := dataset.LoadFile(a.cfg.Data.Raw)
			if err != nil {
				return err
			}
			opts := a.cfg.Clean
			opts.Logger = a.logger
			out, rep, err := clean.Clean(raw, opts)
			if err != nil {
				return err
			}
			if err := dataset.SaveFile(a.cfg.Data.Cleaned, out); err != nil {
				return err
			}
			a.logger.Info("cleaned symptom table",
				log.OperationKey, log.OperationClean,
				"path", a.cfg.Data.Cleaned,
				log.SamplesKey, out.NRows(),
				log.FeaturesKey, out.NCols(),
				log.DroppedKey, len(rep.Dropped)+len(rep.Redundant)+len(rep.NearZeroVariance),
				"rows_removed", rep.RowsRemoved,
			)
			return nil
		},
	}
}

func newTuneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tune",
		Short: "tune, select and evaluate every configured model family",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := a.cfg.Compare()
			if err != nil {
				return err
			}
			t, err := dataset.LoadFile(a.cfg.Data.Cleaned)
			if err != nil {
				return err
			}
			dir := a.cfg.Output.Dir
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return errors.Wrapf(err, "create %s", dir)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			reg := prometheus.NewRegistry()
			start := time.Now()
			cmp, err := compare.Run(ctx, t, cc,
				compare.WithLogger(a.logger),
				compare.WithRecorder(tune.NewRecorder(reg)),
			)
			if err != nil {
				if cmp == nil || !errors.Is(err, context.Canceled) {
					return err
				}
				// 中断までに終わった分は書き出してからエラーを返す
				a.logger.Warn("comparison interrupted; writing partial results",
					"families", len(cmp.Families),
					log.DurationMsKey, time.Since(start).Milliseconds(),
				)
				if werr := a.writeRun(dir, cmp, reg); werr != nil {
					a.logger.Error("write partial results", "error", werr.Error())
				}
				return err
			}
			a.logger.Info("comparison finished",
				log.ModeKey, cc.Mode.String(),
				log.DurationMsKey, time.Since(start).Milliseconds(),
			)
			if err := a.writeRun(dir, cmp, reg); err != nil {
				return err
			}
			if a.cfg.Output.Plots {
				if err := plotTestSets(dir, cmp); err != nil {
					return err
				}
			}
			report.RenderTable(cmd.OutOrStdout(), cmp.Summaries())
			return nil
		},
	}
}

// writeRun persists the summaries, the checkpoint, the effective config and
// the fit counters of cmp under dir.
func (a *app) writeRun(dir string, cmp *compare.Comparison, reg *prometheus.Registry) error {
	if err := report.WriteSummaries(filepath.Join(dir, a.cfg.Output.Summaries), cmp.Summaries()); err != nil {
		return err
	}
	if err := report.SaveResults(filepath.Join(dir, a.cfg.Output.Checkpoint), report.NewCheckpoint(cmp)); err != nil {
		return err
	}
	if err := a.cfg.Save(filepath.Join(dir, "config.yaml")); err != nil {
		return err
	}
	if a.cfg.Output.Metrics != "" {
		if err := prometheus.WriteToTextfile(filepath.Join(dir, a.cfg.Output.Metrics), reg); err != nil {
			return errors.Wrap(err, "write metrics")
		}
	}
	return nil
}

// plotTestSets draws the held-out diagnostics of every evaluated family.
func plotTestSets(dir string, cmp *compare.Comparison) error {
	th := report.DefaultTheme()
	for _, fr := range cmp.Families {
		if fr.LastFit == nil {
			continue
		}
		name := fr.Family.String()
		p := fr.LastFit.Test.Predictions
		title := fmt.Sprintf("%s (test)", name)
		if cmp.Config.Mode == model.Classification {
			if err := report.ROCCurve(filepath.Join(dir, name+"_roc.png"), title, p.Truth, p.Prob, th); err != nil {
				return err
			}
			continue
		}
		if err := report.PredictedVsObserved(filepath.Join(dir, name+"_observed.png"), title, p.Truth, p.Estimate, th); err != nil {
			return err
		}
		if err := report.ResidualsVsPredicted(filepath.Join(dir, name+"_residuals.png"), title, p.Truth, p.Estimate, th); err != nil {
			return err
		}
	}
	return nil
}

func newReportCmd(a *app) *cobra.Command {
	var top int
	var metric string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "render tables and tuning curves from a saved run",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.Output.Dir
			cp, err := report.LoadResults(filepath.Join(dir, a.cfg.Output.Checkpoint))
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			report.RenderTable(w, cp.Summaries)
			th := report.DefaultTheme()
			for _, res := range cp.Results {
				if len(res.Params) == 0 {
					if res.Failures() > 0 || res.Partial {
						fmt.Fprintf(w, "\n%s failures\n", res.Family)
						report.RenderFailures(w, res)
					}
					continue
				}
				fmt.Fprintf(w, "\n%s (%d configurations, %d folds)\n", res.Family, len(res.Configs), res.Folds)
				if report.RenderFailures(w, res) > 0 {
					fmt.Fprintln(w)
				}
				if err := report.RenderConfigs(w, res, metric, top); err != nil {
					a.logger.Warn("family has no ranked configuration", log.FamilyKey, res.Family, "error", err)
					continue
				}
				for _, p := range res.Params {
					curve, err := report.AsciiCurve(res, p.ID, metric)
					if err != nil {
						return err
					}
					fmt.Fprintln(w, curve)
					if a.cfg.Output.Plots {
						path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", res.Family, p.ID))
						if err := report.TuningCurve(path, res, p.ID, metric, th); err != nil {
							return err
						}
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 5, "configurations shown per family")
	cmd.Flags().StringVar(&metric, "metric", "", "ranking metric (default: the primary metric)")
	return cmd
}
