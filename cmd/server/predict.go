package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/neuroinsight-api/internal/config"
	"github.com/Brownie44l1/neuroinsight-api/internal/model"
)

func NewPredictCmd(configFile *string, flagOptions *config.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "predict <image>...",
		Example: `
  neuroinsight predict scan.jpg
  neuroinsight predict --model output/neuroinsight.onnx scans/*.png
		`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()
			ctx = logr.NewContext(ctx, stdr.NewWithOptions(log.Default(), stdr.Options{LogCaller: stdr.Error}))
			if len(args) == 0 {
				return errors.New("at least one image is required")
			}

			options, err := loadOptions(*configFile, cmd.Flags(), flagOptions)
			if err != nil {
				return err
			}
			modelServer, err := LoadModel(ctx, options.Model)
			if err != nil {
				return err
			}
			defer modelServer.Close()

			rows, err := PredictFiles(ctx, model.NewPredictor(modelServer, model.WithMaxPixels(options.MaxImagePixels)), args)
			if err != nil {
				return err
			}
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			header := table.Row{"File", "Class", "Confidence"}
			for _, label := range model.Labels {
				header = append(header, label)
			}
			t.AppendHeader(header)
			for _, row := range rows {
				t.AppendRow(row)
			}
			t.Render()
			return nil
		},
	}
	return cmd
}

// PredictFiles classifies each file and returns one table row per file.
func PredictFiles(ctx context.Context, predictor *model.Predictor, files []string) ([]table.Row, error) {
	rows := make([]table.Row, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		prediction, err := predictor.Predict(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		row := table.Row{filepath.Base(file), prediction.PredictedClass, formatPercent(prediction.Confidence)}
		for _, prob := range prediction.Probabilities {
			row = append(row, formatPercent(prob.Value))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}
