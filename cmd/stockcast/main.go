package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"stockcast/internal/alphavantage"
	"stockcast/internal/config"
	"stockcast/internal/logging"
	"stockcast/internal/metrics"
	"stockcast/internal/pipeline"
	"stockcast/internal/store"
	"stockcast/pkg/model"
)

var (
	cfgFile     string
	dataDir     string
	symbol      string
	logLevel    string
	logFormat   string
	metricsFile string
	parquetOut  bool
	modelKind   string
	format      string
	limit       int
	quiet       bool

	cfg       *config.Config
	logger    zerolog.Logger
	logCloser io.Closer
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "stockcast",
		Short: "Fundamentals-aware stock decision pipeline",
		Long: `Stockcast downloads daily prices and quarterly fundamentals from Alpha Vantage,
merges each statement category onto the price history, trains one model per
category and averages their predictions into Buy / Sell / Hold decisions.

Stages:
  fetch    - download prices and statements, keep the date window and quarterly reports
  merge    - pair every trading day with a statement per category
  train    - fit one model per category on its merged table
  predict  - average the category predictions and decide

Examples:
  stockcast run --symbol IBM
  stockcast train --symbol IBM --model ridge
  stockcast predict --symbol IBM --format json --limit 20`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logCloser != nil {
				logCloser.Close()
			}
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "config.yaml", "config file path")
	pf.StringVar(&dataDir, "data-dir", "", "artifact directory (overrides config)")
	pf.StringVar(&symbol, "symbol", "", "ticker symbol (overrides config)")
	pf.StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	pf.StringVar(&logFormat, "log-format", "", "log format: console, json")
	pf.StringVar(&metricsFile, "metrics-file", "", "write Prometheus textfile metrics to this path")
	pf.BoolVar(&quiet, "quiet", false, "hide the progress bar")

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download and preprocess prices and statements",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("parquet") {
				cfg.Data.Parquet = parquetOut
			}
			_, err := runStages(cmd.Context(), pipeline.Fetch, pipeline.Preprocess)
			return err
		},
	}
	fetchCmd.Flags().BoolVar(&parquetOut, "parquet", false, "also export daily bars as parquet")

	mergeCmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge statements onto the daily prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := runStages(cmd.Context(), pipeline.Merge, pipeline.Merge)
			if err != nil {
				return err
			}
			return outputMergeTable(a)
		},
	}

	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Train one model per statement category",
		RunE: func(cmd *cobra.Command, args []string) error {
			if modelKind != "" {
				cfg.Training.Model.Kind = modelKind
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			a, err := runStages(cmd.Context(), pipeline.Train, pipeline.Train)
			if err != nil {
				return err
			}
			return outputModelTable(a)
		},
	}
	trainCmd.Flags().StringVar(&modelKind, "model", "", "model: forest, ridge")

	predictCmd := &cobra.Command{
		Use:   "predict",
		Short: "Average the category models and decide",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := runStages(cmd.Context(), pipeline.Predict, pipeline.Predict)
			if err != nil {
				return err
			}
			return outputPrediction(a)
		},
	}
	addOutputFlags(predictCmd)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run every stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("parquet") {
				cfg.Data.Parquet = parquetOut
			}
			a, err := runStages(cmd.Context(), pipeline.Fetch, pipeline.Predict)
			if err != nil {
				return err
			}
			if format != "json" {
				if err := outputModelTable(a); err != nil {
					return err
				}
			}
			return outputPrediction(a)
		},
	}
	runCmd.Flags().BoolVar(&parquetOut, "parquet", false, "also export daily bars as parquet")
	addOutputFlags(runCmd)

	rootCmd.AddCommand(fetchCmd, mergeCmd, trainCmd, predictCmd, runCmd)

	// Cancel on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&format, "format", "table", "output format: table, json")
	cmd.Flags().IntVar(&limit, "limit", 0, "show only the latest N decisions (0 = all)")
}

// setup loads .env and the config, applies flag overrides and builds the logger
func setup(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if dataDir != "" {
		cfg.Data.Dir = dataDir
	}
	if symbol != "" {
		cfg.Data.Symbol = strings.ToUpper(symbol)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if metricsFile != "" {
		cfg.Metrics.File = metricsFile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, logCloser, err = logging.New(cfg.Log)
	if err != nil {
		return err
	}
	return nil
}

func runStages(ctx context.Context, from, to pipeline.Stage) (*pipeline.Artifacts, error) {
	start, end, err := cfg.Data.Window()
	if err != nil {
		return nil, err
	}

	rec := metrics.New()
	if cfg.Metrics.File != "" {
		defer func() {
			if err := rec.WriteTextfile(cfg.Metrics.File); err != nil {
				logger.Warn().Err(err).Str("path", cfg.Metrics.File).Msg("writing metrics failed")
			}
		}()
	}

	st := store.New(cfg.Data.Dir)
	logger.Debug().Str("dir", st.Root()).Str("symbol", cfg.Data.Symbol).Msg("artifact store")

	opts := []pipeline.Option{
		pipeline.WithStore(st),
		pipeline.WithMetrics(rec),
		pipeline.WithLogger(logger),
	}
	if from == pipeline.Fetch {
		if err := cfg.RequireAPIKey(); err != nil {
			return nil, err
		}
		client := alphavantage.NewClient(cfg.API.Key,
			alphavantage.WithBaseURL(cfg.API.BaseURL),
			alphavantage.WithRateLimit(cfg.API.RateLimit),
			alphavantage.WithMaxRetries(cfg.API.MaxRetries),
			alphavantage.WithMaxBackoff(cfg.API.MaxBackoff),
			alphavantage.WithLogger(logger),
			alphavantage.WithHTTPClient(newHTTPClient(cfg.API.Timeout)),
		)
		opts = append(opts, pipeline.WithFetcher(client))
	}

	var bar *progressbar.ProgressBar
	opts = append(opts, pipeline.WithProgress(func(s pipeline.Stage, c model.Category) {
		if bar == nil {
			return
		}
		desc := s.String()
		if c != "" {
			desc += " " + string(c)
		}
		bar.Describe(fmt.Sprintf("%-6s %s", cfg.Data.Symbol, desc))
		bar.Add(1)
	}))

	runner := pipeline.NewRunner(pipeline.Options{
		Symbol:     cfg.Data.Symbol,
		Start:      start,
		End:        end,
		Training:   cfg.Training,
		Thresholds: cfg.Thresholds,
		Parquet:    cfg.Data.Parquet,
	}, opts...)
	if !quiet {
		bar = newProgressBar(runner.Steps(from, to), fmt.Sprintf("%-6s %s", cfg.Data.Symbol, from))
	}

	a, err := runner.Run(ctx, from, to, nil)
	if bar != nil {
		bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	return a, err
}
