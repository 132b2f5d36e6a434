// Package pipeline drives a symbol through fetch, preprocess, merge, train
// and predict. Artifacts pass between stages in memory and, when a store is
// configured, are persisted so a later run can resume at any stage.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"stockcast/internal/alphavantage"
	"stockcast/internal/ensemble"
	"stockcast/internal/merge"
	"stockcast/internal/metrics"
	"stockcast/internal/preprocess"
	"stockcast/internal/store"
	"stockcast/internal/training"
	"stockcast/pkg/model"
)

// Fetcher downloads raw payloads
type Fetcher interface {
	FetchDaily(ctx context.Context, symbol string) ([]byte, error)
	FetchStatement(ctx context.Context, symbol string, c model.Category) ([]byte, error)
}

// Options describe what a run processes
type Options struct {
	Symbol     string
	Categories []model.Category // defaults to model.Categories
	Start, End time.Time        // zero bound is open
	Training   training.Config
	Thresholds ensemble.Thresholds // zero value means ensemble.DefaultThresholds
	Parquet    bool                // export preprocessed bars as parquet
}

// Artifacts are the typed outputs of the stages
type Artifacts struct {
	RawDaily      []byte
	RawStatements map[model.Category][]byte
	Bars          []model.PriceBar
	Statements    map[model.Category][]model.StatementRecord
	Merged        map[model.Category]*merge.Result
	Models        map[model.Category]*training.Artifact
	Prediction    *ensemble.Result
}

func newArtifacts() *Artifacts {
	return &Artifacts{
		RawStatements: make(map[model.Category][]byte),
		Statements:    make(map[model.Category][]model.StatementRecord),
		Merged:        make(map[model.Category]*merge.Result),
		Models:        make(map[model.Category]*training.Artifact),
	}
}

// ProgressFunc is called after each unit of work; category is empty for
// stage-wide steps
type ProgressFunc func(stage Stage, category model.Category)

// Runner executes stages for one symbol
type Runner struct {
	opts     Options
	fetcher  Fetcher
	store    *store.Store
	metrics  *metrics.Recorder
	logger   zerolog.Logger
	progress ProgressFunc
}

// Option configures the Runner
type Option func(*Runner)

// WithFetcher sets the download source
func WithFetcher(f Fetcher) Option {
	return func(r *Runner) { r.fetcher = f }
}

// WithStore persists and loads artifacts
func WithStore(s *store.Store) Option {
	return func(r *Runner) { r.store = s }
}

// WithMetrics records soft conditions and stage errors
func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger sets a logger
func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithProgress sets the progress callback
func WithProgress(fn ProgressFunc) Option {
	return func(r *Runner) { r.progress = fn }
}

// NewRunner creates a runner
func NewRunner(opts Options, options ...Option) *Runner {
	if len(opts.Categories) == 0 {
		opts.Categories = model.Categories
	}
	if opts.Thresholds == (ensemble.Thresholds{}) {
		opts.Thresholds = ensemble.DefaultThresholds()
	}
	r := &Runner{opts: opts, logger: zerolog.Nop()}
	for _, o := range options {
		o(r)
	}
	r.logger = r.logger.With().Str("symbol", opts.Symbol).Logger()
	return r
}

// Steps returns the number of progress callbacks a run of from..to makes
func (r *Runner) Steps(from, to Stage) int {
	n := 0
	for s := from; s <= to && s < Done; s++ {
		switch s {
		case Fetch:
			n += 1 + len(r.opts.Categories)
		case Preprocess, Predict:
			n++
		default:
			n += len(r.opts.Categories)
		}
	}
	return n
}

// Run executes stages from..to inclusive. in may carry artifacts of
// earlier stages; missing inputs are loaded from the store.
func (r *Runner) Run(ctx context.Context, from, to Stage, in *Artifacts) (*Artifacts, error) {
	if from > to || to >= Done {
		return nil, fmt.Errorf("invalid stage range %s..%s", from, to)
	}
	a := in
	if a == nil {
		a = newArtifacts()
	}
	for s := from; s <= to; s++ {
		if err := ctx.Err(); err != nil {
			return a, &StageError{Stage: s, Err: err}
		}
		start := time.Now()
		r.logger.Info().Str("stage", s.String()).Msg("stage started")

		var err error
		switch s {
		case Fetch:
			err = r.fetch(ctx, a)
		case Preprocess:
			err = r.preprocess(a)
		case Merge:
			err = r.merge(a)
		case Train:
			err = r.train(a)
		case Predict:
			err = r.predict(a)
		}
		if err != nil {
			var se *StageError
			if !errors.As(err, &se) {
				err = &StageError{Stage: s, Err: err}
			}
			if r.metrics != nil {
				r.metrics.RecordStageError(s.String())
			}
			r.logger.Error().Err(err).Str("stage", s.String()).Msg("stage failed")
			return a, err
		}

		elapsed := time.Since(start)
		if r.metrics != nil {
			r.metrics.RecordStage(s.String(), elapsed)
		}
		r.logger.Info().Str("stage", s.String()).Dur("elapsed", elapsed).Msg("stage finished")
	}
	return a, nil
}

func (r *Runner) step(s Stage, c model.Category) {
	if r.progress != nil {
		r.progress(s, c)
	}
}

func (r *Runner) fetch(ctx context.Context, a *Artifacts) error {
	if r.fetcher == nil {
		return errors.New("no fetcher configured")
	}
	symbol := r.opts.Symbol

	daily, err := r.fetcher.FetchDaily(ctx, symbol)
	r.recordRequest("TIME_SERIES_DAILY", err)
	if err != nil {
		return err
	}
	a.RawDaily = daily
	if r.store != nil {
		if err := r.store.SaveDailyRaw(symbol, daily); err != nil {
			return err
		}
	}
	r.step(Fetch, "")

	for _, c := range r.opts.Categories {
		payload, err := r.fetcher.FetchStatement(ctx, symbol, c)
		info, _ := c.Info()
		r.recordRequest(info.Function, err)
		if err != nil {
			return &StageError{Stage: Fetch, Category: c, Err: err}
		}
		a.RawStatements[c] = payload
		if r.store != nil {
			if err := r.store.SaveStatementRaw(symbol, c, payload); err != nil {
				return &StageError{Stage: Fetch, Category: c, Err: err}
			}
		}
		r.step(Fetch, c)
	}
	return nil
}

func (r *Runner) recordRequest(function string, err error) {
	if r.metrics != nil {
		r.metrics.RecordRequest(function, err)
	}
}

func (r *Runner) preprocess(a *Artifacts) error {
	symbol := r.opts.Symbol

	var bars []model.PriceBar
	var err error
	switch {
	case a.RawDaily != nil:
		bars, err = alphavantage.ParseDaily(bytes.NewReader(a.RawDaily))
	case r.store != nil:
		bars, err = r.store.LoadBars(symbol)
	default:
		err = errors.New("no daily prices to preprocess")
	}
	if err != nil {
		return err
	}
	total := len(bars)
	bars = preprocess.FilterBars(bars, r.opts.Start, r.opts.End)
	a.Bars = bars
	r.logger.Info().Int("bars", len(bars)).Int("outside_window", total-len(bars)).Msg("daily prices filtered")

	for _, c := range r.opts.Categories {
		var recs []model.StatementRecord
		switch payload, ok := a.RawStatements[c]; {
		case ok:
			recs, err = preprocess.QuarterlyOnly(payload, c)
		case r.store != nil:
			recs, err = r.store.LoadStatements(symbol, c)
		default:
			err = errors.New("no statement payload to preprocess")
		}
		if err != nil {
			return &StageError{Stage: Preprocess, Category: c, Err: err}
		}
		a.Statements[c] = recs
	}

	if r.store != nil {
		if err := r.store.SaveBars(symbol, bars); err != nil {
			return err
		}
		for _, c := range r.opts.Categories {
			if err := r.store.SaveStatements(symbol, c, a.Statements[c]); err != nil {
				return &StageError{Stage: Preprocess, Category: c, Err: err}
			}
		}
		if r.opts.Parquet {
			path, err := r.store.ExportBarsParquet(symbol, bars)
			if err != nil {
				return err
			}
			r.logger.Info().Str("path", path).Msg("parquet export written")
		}
	}
	r.step(Preprocess, "")
	return nil
}

func (r *Runner) merge(a *Artifacts) error {
	symbol := r.opts.Symbol
	bars := a.Bars
	if bars == nil {
		if r.store == nil {
			return errors.New("no daily prices to merge")
		}
		var err error
		if bars, err = r.store.LoadBars(symbol); err != nil {
			return err
		}
		a.Bars = bars
	}

	for _, c := range r.opts.Categories {
		recs, ok := a.Statements[c]
		if !ok {
			if r.store == nil {
				return &StageError{Stage: Merge, Category: c, Err: errors.New("no statements to merge")}
			}
			var err error
			if recs, err = r.store.LoadStatements(symbol, c); err != nil {
				return &StageError{Stage: Merge, Category: c, Err: err}
			}
		}

		res := merge.Merge(bars, recs)
		a.Merged[c] = res
		if r.metrics != nil {
			r.metrics.RecordMerge(string(c), res.Stats.Merged, res.Stats.Dropped)
		}
		ev := r.logger.Info()
		if res.Stats.Dropped > 0 {
			ev = r.logger.Warn()
		}
		ev.Str("category", string(c)).
			Int("rows", res.Stats.Merged).
			Int("dropped", res.Stats.Dropped).
			Int("statements", len(recs)).
			Msg("merged")

		if r.store != nil {
			if err := r.store.SaveMerged(symbol, c, res.Table); err != nil {
				return &StageError{Stage: Merge, Category: c, Err: err}
			}
		}
		r.step(Merge, c)
	}
	return nil
}

func (r *Runner) mergedInput(c model.Category, a *Artifacts, s Stage) (*merge.Result, error) {
	if res, ok := a.Merged[c]; ok {
		return res, nil
	}
	if r.store == nil {
		return nil, &StageError{Stage: s, Category: c, Err: errors.New("no merged table")}
	}
	t, err := r.store.LoadMerged(r.opts.Symbol, c)
	if err != nil {
		return nil, &StageError{Stage: s, Category: c, Err: err}
	}
	times, err := merge.Timestamps(t)
	if err != nil {
		return nil, &StageError{Stage: s, Category: c, Err: err}
	}
	res := &merge.Result{Table: t, Times: times, Stats: merge.Stats{Merged: t.Rows()}}
	a.Merged[c] = res
	return res, nil
}

func (r *Runner) train(a *Artifacts) error {
	trainer := training.NewTrainer(r.opts.Training, r.logger)
	for _, c := range r.opts.Categories {
		res, err := r.mergedInput(c, a, Train)
		if err != nil {
			return err
		}
		art, err := trainer.Train(c, res.Table)
		if err != nil {
			return &StageError{Stage: Train, Category: c, Err: err}
		}
		a.Models[c] = art
		if r.metrics != nil {
			r.metrics.RecordModel(string(c), art.Metrics.R2)
			r.metrics.RecordImputed(string(c), "prefill", art.Quality.Prefilled)
			r.metrics.RecordImputed(string(c), "fill", art.Quality.Imputed)
			r.metrics.RecordImputed(string(c), "rescale", art.Quality.SecondPass)
			r.metrics.RecordDivisionByZero(string(c), art.Quality.DivisionByZero)
		}
		if r.store != nil {
			if err := r.store.SaveModel(r.opts.Symbol, art); err != nil {
				return &StageError{Stage: Train, Category: c, Err: err}
			}
		}
		r.step(Train, c)
	}
	return nil
}

func (r *Runner) predict(a *Artifacts) error {
	if missing := r.missingCategories(); len(missing) > 0 {
		r.logger.Warn().
			Strs("missing", missing).
			Int("models", len(r.opts.Categories)).
			Msg("ensemble averages a subset of the statement categories")
	}
	inputs := make(map[model.Category]ensemble.Input, len(r.opts.Categories))
	for _, c := range r.opts.Categories {
		if _, ok := a.Models[c]; !ok {
			if r.store == nil {
				return &StageError{Stage: Predict, Category: c, Err: errors.New("no trained model")}
			}
			art, err := r.store.LoadModel(r.opts.Symbol, c)
			if err != nil {
				return &StageError{Stage: Predict, Category: c, Err: err}
			}
			a.Models[c] = art
		}
		res, err := r.mergedInput(c, a, Predict)
		if err != nil {
			return err
		}
		inputs[c] = ensemble.Input{Table: res.Table, Times: res.Times}
	}

	p := ensemble.NewPredictor(a.Models, r.opts.Thresholds, r.logger)
	result, err := p.Run(r.opts.Categories, inputs)
	if err != nil {
		return err
	}
	a.Prediction = result

	counts := result.Counts()
	if r.metrics != nil {
		for d, n := range counts {
			r.metrics.RecordDecisions(string(d), n)
		}
	}
	r.logger.Info().
		Int("rows", len(result.Rows)).
		Int("buy", counts[model.Buy]).
		Int("sell", counts[model.Sell]).
		Int("hold", counts[model.Hold]).
		Msg("decisions made")
	r.step(Predict, "")
	return nil
}

func (r *Runner) missingCategories() []string {
	have := make(map[model.Category]bool, len(r.opts.Categories))
	for _, c := range r.opts.Categories {
		have[c] = true
	}
	var missing []string
	for _, c := range model.Categories {
		if !have[c] {
			missing = append(missing, string(c))
		}
	}
	return missing
}
