package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"

	"stockcast/internal/ensemble"
	"stockcast/internal/pipeline"
	"stockcast/pkg/model"
)

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func newProgressBar(total int, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]█[reset]",
			SaucerHead:    "[green]█[reset]",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func outputMergeTable(a *pipeline.Artifacts) error {
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Category", "Rows", "Dropped", "Columns"}),
	)
	for _, c := range model.Categories {
		res, ok := a.Merged[c]
		if !ok {
			continue
		}
		table.Append([]string{
			string(c),
			fmt.Sprintf("%d", res.Stats.Merged),
			fmt.Sprintf("%d", res.Stats.Dropped),
			fmt.Sprintf("%d", len(res.Table.Columns())),
		})
	}
	table.Render()
	return nil
}

func outputModelTable(a *pipeline.Artifacts) error {
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Category", "Model", "Features", "Train", "Test", "MSE", "R2", "Imputed"}),
	)
	for _, c := range model.Categories {
		art, ok := a.Models[c]
		if !ok {
			continue
		}
		table.Append([]string{
			string(c),
			art.Kind,
			fmt.Sprintf("%d", len(art.Schema.Columns)),
			fmt.Sprintf("%d", art.Metrics.TrainRows),
			fmt.Sprintf("%d", art.Metrics.TestRows),
			fmt.Sprintf("%.4f", art.Metrics.MSE),
			fmt.Sprintf("%.4f", art.Metrics.R2),
			fmt.Sprintf("%d", art.Quality.Prefilled+art.Quality.Imputed+art.Quality.SecondPass),
		})
	}
	table.Render()
	fmt.Println()
	return nil
}

// predictionOutput is the JSON document of a prediction run
type predictionOutput struct {
	Symbol string                 `json:"symbol"`
	Counts map[model.Decision]int `json:"counts"`
	Rows   []ensemble.Row         `json:"rows"`
}

func outputPrediction(a *pipeline.Artifacts) error {
	res := a.Prediction
	if res == nil {
		return fmt.Errorf("no prediction produced")
	}
	rows := res.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}

	if format == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(predictionOutput{
			Symbol: cfg.Data.Symbol,
			Counts: res.Counts(),
			Rows:   rows,
		})
	}

	if len(rows) == 0 {
		fmt.Println("No rows to decide on.")
		return nil
	}

	header := []string{"Date"}
	for _, c := range model.Categories {
		if _, ok := res.Bundle[c]; ok {
			header = append(header, string(c))
		}
	}
	header = append(header, "Score", "Decision")

	table := tablewriter.NewTable(os.Stdout, tablewriter.WithHeader(header))
	offset := len(res.Rows) - len(rows)
	for i, r := range rows {
		line := []string{r.Time.Format(model.DateLayout)}
		for _, c := range model.Categories {
			if preds, ok := res.Bundle[c]; ok {
				line = append(line, fmt.Sprintf("%+.3f", preds[offset+i]))
			}
		}
		line = append(line, fmt.Sprintf("%+.3f", r.Score), string(r.Decision))
		table.Append(line)
	}
	table.Render()

	counts := res.Counts()
	fmt.Printf("\n%s: %d Buy, %d Sell, %d Hold over %d days\n",
		cfg.Data.Symbol, counts[model.Buy], counts[model.Sell], counts[model.Hold], len(res.Rows))
	return nil
}
