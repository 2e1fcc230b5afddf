package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/estimator/internal/estimate"
	"github.com/sells-group/estimator/internal/model"
	"github.com/sells-group/estimator/internal/render"
	"github.com/sells-group/estimator/internal/sheet"
)

var (
	estimateJobPath  string
	estimateOut      string
	estimateHTML     string
	estimateTemplate string
	estimateToday    string
	estimateJSON     bool
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Generate an estimate for a single job",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		job, err := loadJob(estimateJobPath)
		if err != nil {
			return err
		}
		today, err := resolveToday(estimateToday)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "estimate")
		if err != nil {
			return err
		}
		defer env.Close()

		est, err := env.Pipeline.Run(ctx, *job, today)
		if err != nil {
			return eris.Wrap(err, "estimate")
		}

		if err := exportEstimate(est, env.Pipeline, exportOptions{
			Out:      estimateOut,
			HTML:     estimateHTML,
			Template: estimateTemplate,
		}); err != nil {
			return err
		}

		if estimateJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(est)
		}
		printEstimate(os.Stdout, os.Stderr, est)
		return nil
	},
}

func init() {
	estimateCmd.Flags().StringVar(&estimateJobPath, "job", "", "job definition file, .yaml or .json (required)")
	estimateCmd.Flags().StringVar(&estimateOut, "out", "", "write the estimate workbook to this path")
	estimateCmd.Flags().StringVar(&estimateHTML, "html", "", "write the HTML table to this path")
	estimateCmd.Flags().StringVar(&estimateTemplate, "template", "", "fill this quote template instead of writing the plain workbook")
	estimateCmd.Flags().StringVar(&estimateToday, "today", "", "pricing date as YYYY-MM-DD (default: current date)")
	estimateCmd.Flags().BoolVar(&estimateJSON, "json", false, "print the estimate as JSON")
	_ = estimateCmd.MarkFlagRequired("job")
	rootCmd.AddCommand(estimateCmd)
}

// loadJob reads and validates a job file.
func loadJob(path string) (*model.Job, error) {
	job, err := model.LoadJob(path)
	if err != nil {
		return nil, err
	}
	if err := job.Validate(); err != nil {
		return nil, eris.Wrapf(err, "job %s", path)
	}
	return job, nil
}

// exportOptions names the files an estimate is written to. Empty paths are
// skipped.
type exportOptions struct {
	Out      string
	HTML     string
	Template string
}

// exportEstimate writes the requested files. With a template the workbook
// at Out is the filled template; otherwise it is the plain one-sheet export.
// Template warnings are appended to the estimate's warnings.
func exportEstimate(est *model.Estimate, p *estimate.Pipeline, opts exportOptions) error {
	if opts.HTML != "" {
		html, err := render.HTML(est.Items, est.Totals, p.Calculator().Rates())
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.HTML, []byte(html), 0o644); err != nil {
			return eris.Wrap(err, "write html")
		}
		zap.L().Info("wrote html", zap.String("path", opts.HTML))
	}

	if opts.Out == "" {
		if opts.Template != "" {
			return eris.New("--template requires --out")
		}
		return nil
	}

	var data []byte
	if opts.Template != "" {
		tmpl, err := os.ReadFile(opts.Template)
		if err != nil {
			return eris.Wrap(err, "read template")
		}
		res, err := sheet.Fill(tmpl, est.Items, templateLayout())
		if err != nil {
			return eris.Wrap(err, "fill template")
		}
		for _, w := range res.Warnings {
			est.Warn(w)
		}
		data = res.Data
	} else {
		var err error
		data, err = sheet.WriteEstimate(est.Items, est.Totals)
		if err != nil {
			return err
		}
	}

	if err := os.WriteFile(opts.Out, data, 0o644); err != nil {
		return eris.Wrap(err, "write workbook")
	}
	zap.L().Info("wrote workbook", zap.String("path", opts.Out), zap.Bool("template", opts.Template != ""))
	return nil
}

// printEstimate writes the terminal table to out and warnings to errOut.
func printEstimate(out, errOut io.Writer, est *model.Estimate) {
	_, _ = fmt.Fprintln(out, render.Table(est.Items, est.Totals))
	if est.ID != "" {
		_, _ = fmt.Fprintf(out, "ID: %s\n", est.ID)
	}
	for _, w := range est.Warnings {
		_, _ = fmt.Fprintf(errOut, "warning: %s\n", w)
	}
}
