// Package estimate runs the estimate pipeline: generate items with a
// completion model, recover and normalize them, then price them.
package estimate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/estimator/internal/config"
	"github.com/sells-group/estimator/internal/llmjson"
	"github.com/sells-group/estimator/internal/model"
	"github.com/sells-group/estimator/internal/normalize"
	"github.com/sells-group/estimator/internal/pricing"
	"github.com/sells-group/estimator/internal/prompt"
	"github.com/sells-group/estimator/internal/store"
	"github.com/sells-group/estimator/pkg/llm"
)

// Options toggles the optional pipeline steps.
type Options struct {
	// NormalizePass sends the normalized items back to the model once to
	// clean up labels and units.
	NormalizePass bool
	// FitBudget rescales prices toward the job's budget hint when it parses.
	FitBudget bool
	Scale     pricing.ScaleOptions
}

// OptionsFromConfig builds Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		NormalizePass: cfg.LLM.NormalizePass,
		FitBudget:     cfg.Pricing.FitBudget,
		Scale: pricing.ScaleOptions{
			Low:      cfg.Pricing.BudgetScaleLow,
			High:     cfg.Pricing.BudgetScaleHigh,
			Rounding: cfg.Pricing.BudgetRounding,
		},
	}
}

// RatesFromConfig returns the pricing rates of the loaded configuration.
func RatesFromConfig(cfg config.PricingConfig) pricing.Rates {
	return pricing.Rates{
		RushK:             cfg.RushK,
		ManagementCapRate: cfg.ManagementCapRate,
		TaxRate:           cfg.TaxRate,
		BufferDays:        cfg.BufferDays,
	}
}

// Pipeline turns a job into a priced estimate. Each Run is independent; the
// pipeline holds no per-request state.
type Pipeline struct {
	llm   llm.Completer
	calc  *pricing.Calculator
	store store.Store // may be nil
	opts  Options
}

// New creates a Pipeline. st may be nil, in which case estimates are not
// persisted.
func New(completer llm.Completer, calc *pricing.Calculator, st store.Store, opts Options) *Pipeline {
	return &Pipeline{
		llm:   completer,
		calc:  calc,
		store: st,
		opts:  opts,
	}
}

// Calculator returns the pipeline's pricing calculator.
func (p *Pipeline) Calculator() *pricing.Calculator {
	return p.calc
}

// Run generates and prices an estimate for job as of today. A failed
// completion call does not fail the run: a fallback item set is priced
// instead and the estimate carries a warning. Run only returns an error when
// ctx is done or the estimate cannot be saved.
func (p *Pipeline) Run(ctx context.Context, job model.Job, today model.Date) (*model.Estimate, error) {
	log := zap.L().With(zap.String("job", job.Name), zap.String("provider", p.llm.Name()))
	start := time.Now()
	log.Info("estimate: starting")

	est := &model.Estimate{
		Job:      job,
		Provider: p.llm.Name(),
	}

	raw, err := p.llm.Complete(ctx, prompt.Generate(job))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, eris.Wrap(ctxErr, "estimate: generate")
		}
		log.Warn("estimate: generation failed, using fallback items", zap.Error(err))
		est.Warn(fmt.Sprintf("item generation failed (%v); showing the standard fallback estimate", err))
		est.UsedFallback = true
		raw = normalize.FallbackJSON(job.ShootDays, job.EditDays)
	}
	est.RawResponse = raw

	doc := llmjson.Parse(raw)
	items := normalize.Normalize(doc.Items)
	log.Debug("estimate: parsed items",
		zap.String("stage", string(doc.Stage)),
		zap.Int("raw_items", len(doc.Items)),
		zap.Int("items", len(items)),
	)
	if len(doc.Items) == 0 && !est.UsedFallback {
		est.Warn("no line items could be read from the model response; showing a minimal estimate")
	}

	if p.opts.NormalizePass && !est.UsedFallback {
		items = p.renormalize(ctx, log, items)
	}

	if drift := normalize.DetectDrift(items, job.Notes); len(drift) > 0 {
		est.Warn("items or notes mention costs outside video production: " + strings.Join(drift, ", "))
	}

	est.BaseDays = p.calc.BaseDays(job.ShootDays, job.EditDays)
	est.TargetDays = pricing.TargetDays(today, job.DeliveryDate)
	est.Items, est.Totals = p.calc.Compute(items, est.BaseDays, est.TargetDays)

	if p.opts.FitBudget {
		p.fitBudget(log, est)
	}
	if n := countReview(est.Items); n > 0 {
		est.Warn(fmt.Sprintf("%d item(s) had unreadable numbers and need review", n))
	}

	if p.store != nil {
		if err := p.store.SaveEstimate(ctx, est); err != nil {
			return nil, eris.Wrap(err, "estimate: save")
		}
	}

	log.Info("estimate: complete",
		zap.String("id", est.ID),
		zap.Int("items", len(est.Items)),
		zap.Int64("total", est.Totals.Total),
		zap.Float64("rush", est.Totals.RushCoefficient),
		zap.Bool("fallback", est.UsedFallback),
		zap.Duration("elapsed", time.Since(start)),
	)
	return est, nil
}

// renormalize runs the optional cleanup pass. Any failure keeps the items
// from the first pass.
func (p *Pipeline) renormalize(ctx context.Context, log *zap.Logger, items []model.LineItem) []model.LineItem {
	out, err := p.llm.Complete(ctx, prompt.Normalize(normalize.ItemsJSON(items)))
	if err != nil {
		log.Warn("estimate: normalize pass failed, keeping first pass", zap.Error(err))
		return items
	}
	doc := llmjson.Parse(out)
	if len(doc.Items) == 0 {
		log.Warn("estimate: normalize pass returned no items, keeping first pass",
			zap.String("stage", string(doc.Stage)),
		)
		return items
	}
	return normalize.Normalize(doc.Items)
}

func (p *Pipeline) fitBudget(log *zap.Logger, est *model.Estimate) {
	target, ok := pricing.ParseBudget(est.Job.BudgetHint)
	if !ok {
		if strings.TrimSpace(est.Job.BudgetHint) != "" {
			log.Info("estimate: budget hint not understood, skipping fit", zap.String("budget", est.Job.BudgetHint))
		}
		return
	}

	items, totals, scale := p.calc.FitBudget(est.Items, est.BaseDays, est.TargetDays, target, p.opts.Scale)
	est.Items, est.Totals = items, totals
	est.BudgetTarget = target
	est.BudgetScale = scale

	if scale <= p.opts.Scale.Low || scale >= p.opts.Scale.High {
		est.Warn(fmt.Sprintf("budget %d yen is out of reach; prices were scaled by the limit %.2f", target, scale))
	}
	log.Info("estimate: fitted to budget",
		zap.Int64("target", target),
		zap.Float64("scale", scale),
		zap.Int64("taxable", totals.TaxableSubtotal),
	)
}

// Reprice recomputes the totals of an estimate from its current items, for
// example after they were edited in a spreadsheet. Prices are taken as given:
// no budget fit is applied. The input is not modified; when a store is
// configured the result replaces the stored estimate with the same ID.
func (p *Pipeline) Reprice(ctx context.Context, est *model.Estimate, today model.Date) (*model.Estimate, error) {
	out := *est
	out.Warnings = nil
	out.BudgetTarget = 0
	out.BudgetScale = 0
	out.BaseDays = p.calc.BaseDays(est.Job.ShootDays, est.Job.EditDays)
	out.TargetDays = pricing.TargetDays(today, est.Job.DeliveryDate)
	out.Items, out.Totals = p.calc.Compute(normalize.EnsureManagementFee(est.Items), out.BaseDays, out.TargetDays)

	if n := countReview(out.Items); n > 0 {
		out.Warn(fmt.Sprintf("%d item(s) had unreadable numbers and need review", n))
	}

	if p.store != nil {
		if err := p.store.SaveEstimate(ctx, &out); err != nil {
			return nil, eris.Wrap(err, "estimate: save repriced")
		}
	}
	return &out, nil
}

func countReview(items []model.LineItem) int {
	n := 0
	for _, it := range items {
		if it.NeedsReview {
			n++
		}
	}
	return n
}
