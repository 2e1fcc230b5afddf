package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/estimator/internal/estimate"
	"github.com/sells-group/estimator/internal/model"
	"github.com/sells-group/estimator/internal/pricing"
	"github.com/sells-group/estimator/internal/sheet"
	"github.com/sells-group/estimator/internal/store"
	"github.com/sells-group/estimator/pkg/llm"
)

// pipelineEnv holds the store and pipeline used by the estimate, batch and
// serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *estimate.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "estimator.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// llmConfig maps the configuration onto the provider client settings.
func llmConfig() llm.Config {
	key, modelName := cfg.LLM.Credentials()
	return llm.Config{
		Provider:      cfg.LLM.Provider,
		APIKey:        key,
		Model:         modelName,
		MaxTokens:     cfg.LLM.MaxTokens,
		Timeout:       time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
		RatePerMinute: cfg.LLM.RatePerMinute,
		MaxAttempts:   cfg.LLM.MaxAttempts,
	}
}

// initPipeline validates the configuration for mode, then sets up the store,
// the completion client and the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	completer, err := llm.New(ctx, llmConfig())
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init llm client")
	}

	calc := pricing.NewCalculator(estimate.RatesFromConfig(cfg.Pricing))
	p := estimate.New(completer, calc, st, estimate.OptionsFromConfig(cfg))

	zap.L().Info("pipeline ready",
		zap.String("provider", completer.Name()),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("normalize_pass", cfg.LLM.NormalizePass),
		zap.Bool("fit_budget", cfg.Pricing.FitBudget),
	)

	return &pipelineEnv{
		Store:    st,
		Pipeline: p,
	}, nil
}

// templateLayout maps the configuration onto the quote template layout.
func templateLayout() sheet.Layout {
	t := cfg.Template
	return sheet.Layout{
		Token:              t.Token,
		TaskCol:            t.TaskCol,
		QtyCol:             t.QtyCol,
		UnitCol:            t.UnitCol,
		PriceCol:           t.PriceCol,
		AmountCol:          t.AmountCol,
		DefaultStartRow:    t.DefaultStartRow,
		DefaultSubtotalRow: t.DefaultSubtotalRow,
		Growable:           t.Growable,
	}
}

// resolveToday returns the date given as YYYY-MM-DD, or the local date when
// s is empty.
func resolveToday(s string) (model.Date, error) {
	if s == "" {
		now := time.Now()
		return model.NewDate(now.Year(), now.Month(), now.Day()), nil
	}
	d, err := model.ParseDate(s)
	if err != nil {
		return model.Date{}, eris.Wrapf(err, "parse --today %q", s)
	}
	return d, nil
}
