package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/estimator/internal/estimate"
	"github.com/sells-group/estimator/internal/model"
	"github.com/sells-group/estimator/internal/pricing"
	"github.com/sells-group/estimator/internal/sheet"
	"github.com/sells-group/estimator/internal/store"
)

// importProvider marks estimates that were built from an edited workbook
// rather than generated.
const importProvider = "import"

var (
	importFile    string
	importJobPath string
	importID      string
	importOut     string
	importHTML    string
	importToday   string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Reprice an edited estimate workbook",
	Long:  "Reads line items from a workbook in the plain export layout, recomputes the totals, and stores the result. With --id the stored estimate is replaced; with --job a new estimate is created.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if (importID == "") == (importJobPath == "") {
			return eris.New("exactly one of --id or --job is required")
		}
		today, err := resolveToday(importToday)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(importFile)
		if err != nil {
			return eris.Wrap(err, "read workbook")
		}
		items, err := sheet.ReadEstimate(data)
		if err != nil {
			return eris.Wrap(err, "import")
		}

		if err := cfg.Validate("template"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		est, err := importTarget(cmd, st)
		if err != nil {
			return err
		}
		est.Items = items

		// Repricing never calls the model, so no client is configured.
		calc := pricing.NewCalculator(estimate.RatesFromConfig(cfg.Pricing))
		p := estimate.New(nil, calc, st, estimate.OptionsFromConfig(cfg))

		repriced, err := p.Reprice(ctx, est, today)
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.String("id", repriced.ID),
			zap.String("file", importFile),
			zap.Int("items", len(repriced.Items)),
			zap.Int64("total", repriced.Totals.Total),
		)

		if err := exportEstimate(repriced, p, exportOptions{Out: importOut, HTML: importHTML}); err != nil {
			return err
		}
		printEstimate(os.Stdout, os.Stderr, repriced)
		return nil
	},
}

// importTarget returns the stored estimate named by --id, or a new estimate
// for the job in --job.
func importTarget(cmd *cobra.Command, st store.Store) (*model.Estimate, error) {
	if importID != "" {
		return st.GetEstimate(cmd.Context(), importID)
	}
	job, err := loadJob(importJobPath)
	if err != nil {
		return nil, err
	}
	return &model.Estimate{Job: *job, Provider: importProvider}, nil
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "edited workbook (required)")
	importCmd.Flags().StringVar(&importJobPath, "job", "", "job file for a new estimate")
	importCmd.Flags().StringVar(&importID, "id", "", "stored estimate to replace")
	importCmd.Flags().StringVar(&importOut, "out", "", "write the repriced workbook to this path")
	importCmd.Flags().StringVar(&importHTML, "html", "", "write the HTML table to this path")
	importCmd.Flags().StringVar(&importToday, "today", "", "pricing date as YYYY-MM-DD (default: current date)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
