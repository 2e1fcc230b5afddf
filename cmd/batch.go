package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/estimator/internal/model"
	"github.com/sells-group/estimator/internal/render"
	"github.com/sells-group/estimator/internal/resilience"
	"github.com/sells-group/estimator/internal/sheet"
)

var (
	batchDir         string
	batchOutDir      string
	batchLimit       int
	batchConcurrency int
	batchToday       string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Estimate every job file in a directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		today, err := resolveToday(batchToday)
		if err != nil {
			return err
		}

		paths, err := findJobFiles(batchDir)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "estimate")
		if err != nil {
			return err
		}
		defer env.Close()

		if batchOutDir != "" {
			if err := os.MkdirAll(batchOutDir, 0o755); err != nil {
				return eris.Wrap(err, "create output dir")
			}
		}

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrentJobs
		}

		summary, err := processBatch(ctx, paths, batchLimit, concurrency, func(ctx context.Context, path string) (*model.Estimate, error) {
			job, err := loadJob(path)
			if err != nil {
				return nil, err
			}
			est, err := env.Pipeline.Run(ctx, *job, today)
			if err != nil {
				return nil, err
			}
			if batchOutDir != "" {
				if err := writePlainWorkbook(est, filepath.Join(batchOutDir, outputName(path))); err != nil {
					return nil, err
				}
			}
			return est, nil
		})
		if err != nil {
			return err
		}

		summary.Write(os.Stdout)
		if summary.Failed() > 0 {
			return eris.Errorf("batch: %d of %d jobs failed", summary.Failed(), summary.Total())
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchDir, "dir", "", "directory of .yaml/.yml/.json job files (required)")
	batchCmd.Flags().StringVar(&batchOutDir, "out-dir", "", "write one workbook per job into this directory")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 100, "max number of jobs to process")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "parallel jobs (default from config)")
	batchCmd.Flags().StringVar(&batchToday, "today", "", "pricing date as YYYY-MM-DD (default: current date)")
	_ = batchCmd.MarkFlagRequired("dir")
	rootCmd.AddCommand(batchCmd)
}

// findJobFiles lists the job files in dir, sorted by name.
func findJobFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: read dir %s", dir)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// outputName maps jobs/promo.yaml to promo.xlsx.
func outputName(jobPath string) string {
	base := filepath.Base(jobPath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".xlsx"
}

func writePlainWorkbook(est *model.Estimate, path string) error {
	data, err := sheet.WriteEstimate(est.Items, est.Totals)
	if err != nil {
		return err
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "write %s", path)
}

// estimateFunc is the callback signature for estimating one job file.
type estimateFunc func(ctx context.Context, path string) (*model.Estimate, error)

// batchResult is the outcome of one job file.
type batchResult struct {
	Path      string
	ID        string
	Total     int64
	Fallback  bool
	Err       error
	ErrorType string
}

// batchSummary collects results in input order.
type batchSummary struct {
	Results []batchResult
}

func (s batchSummary) Total() int { return len(s.Results) }

func (s batchSummary) Failed() int {
	n := 0
	for _, r := range s.Results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// Write prints one line per job followed by failure counts by error type.
func (s batchSummary) Write(w io.Writer) {
	byType := map[string]int{}
	for _, r := range s.Results {
		name := filepath.Base(r.Path)
		switch {
		case r.Err != nil:
			byType[r.ErrorType]++
			_, _ = fmt.Fprintf(w, "FAIL  %s  [%s] %v\n", name, r.ErrorType, r.Err)
		case r.Fallback:
			_, _ = fmt.Fprintf(w, "WARN  %s  %s  %s円 (fallback items)\n", name, truncateID(r.ID), render.Yen(r.Total))
		default:
			_, _ = fmt.Fprintf(w, "OK    %s  %s  %s円\n", name, truncateID(r.ID), render.Yen(r.Total))
		}
	}
	_, _ = fmt.Fprintf(w, "\n%d jobs, %d failed", s.Total(), s.Failed())
	if len(byType) > 0 {
		types := make([]string, 0, len(byType))
		for t := range byType {
			types = append(types, t)
		}
		sort.Strings(types)
		parts := make([]string, 0, len(types))
		for _, t := range types {
			parts = append(parts, fmt.Sprintf("%s=%d", t, byType[t]))
		}
		_, _ = fmt.Fprintf(w, " (%s)", strings.Join(parts, ", "))
	}
	_, _ = fmt.Fprintln(w)
}

// processBatch applies limit, then estimates job files concurrently. A
// failed job does not stop the others; its error is classified and kept in
// the summary.
func processBatch(ctx context.Context, paths []string, limit, concurrency int, run estimateFunc) (batchSummary, error) {
	if len(paths) == 0 {
		zap.L().Info("no job files found")
		return batchSummary{}, nil
	}

	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("jobs", len(paths)),
		zap.Int("concurrency", concurrency),
	)

	// Each goroutine writes only its own slot.
	results := make([]batchResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, path := range paths {
		g.Go(func() error {
			log := zap.L().With(zap.String("job_file", path))
			res := batchResult{Path: path}

			est, err := run(gctx, path)
			if err != nil {
				res.Err = err
				res.ErrorType = resilience.ClassifyError(err)
				log.Error("estimate failed", zap.Error(err), zap.String("error_type", res.ErrorType))
			} else {
				res.ID = est.ID
				res.Total = est.Totals.Total
				res.Fallback = est.UsedFallback
				log.Info("estimate complete",
					zap.String("id", est.ID),
					zap.Int64("total", est.Totals.Total),
				)
			}

			results[i] = res
			return nil // don't abort batch on individual failure
		})
	}

	if err := g.Wait(); err != nil {
		return batchSummary{}, eris.Wrap(err, "batch processing")
	}

	summary := batchSummary{Results: results}
	zap.L().Info("batch complete",
		zap.Int("succeeded", summary.Total()-summary.Failed()),
		zap.Int("failed", summary.Failed()),
	)
	return summary, nil
}
