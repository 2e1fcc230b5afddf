package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/estimator/internal/sheet"
)

var (
	templateID   string
	templatePath string
	templateOut  string
	templateGrow bool
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Fill a quote template with a stored estimate",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("template"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		est, err := st.GetEstimate(ctx, templateID)
		if err != nil {
			return eris.Wrap(err, "template")
		}

		tmpl, err := os.ReadFile(templatePath)
		if err != nil {
			return eris.Wrap(err, "read template")
		}

		layout := templateLayout()
		if cmd.Flags().Changed("grow") {
			layout.Growable = templateGrow
		}

		res, err := sheet.Fill(tmpl, est.Items, layout)
		if err != nil {
			return eris.Wrap(err, "fill template")
		}
		if err := os.WriteFile(templateOut, res.Data, 0o644); err != nil {
			return eris.Wrap(err, "write workbook")
		}

		zap.L().Info("template filled",
			zap.String("id", est.ID),
			zap.String("sheet", res.Binding.Sheet),
			zap.Int("start_row", res.Binding.StartRow),
			zap.Int("written", res.Written),
			zap.Int("inserted", res.Inserted),
		)
		for _, w := range res.Warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w)
		}
		return nil
	},
}

func init() {
	templateCmd.Flags().StringVar(&templateID, "id", "", "stored estimate ID (required)")
	templateCmd.Flags().StringVar(&templatePath, "template", "", "quote template workbook (required)")
	templateCmd.Flags().StringVar(&templateOut, "out", "", "output workbook path (required)")
	templateCmd.Flags().BoolVar(&templateGrow, "grow", false, "insert rows when items exceed the template capacity (default from config)")
	_ = templateCmd.MarkFlagRequired("id")
	_ = templateCmd.MarkFlagRequired("template")
	_ = templateCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(templateCmd)
}
