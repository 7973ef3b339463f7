package main

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/neuroinsight-api/internal/config"
	"github.com/Brownie44l1/neuroinsight-api/internal/model"
)

type fakeEngine struct{}

func (fakeEngine) Run(ctx context.Context, input []float32) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3, 0.4}, nil
}

func TestPredictFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, 16, 16))))
	require.NoError(t, f.Close())

	rows, err := PredictFiles(context.Background(), model.NewPredictor(fakeEngine{}), []string{path})
	require.NoError(t, err)
	assert.Equal(t, []table.Row{{"scan.png", "pituitary", "40.00%", "10.00%", "20.00%", "30.00%", "40.00%"}}, rows)

	_, err = PredictFiles(context.Background(), model.NewPredictor(fakeEngine{}), []string{filepath.Join(dir, "missing.png")})
	assert.Error(t, err)
}

func TestLoadOptionsFlagOverrides(t *testing.T) {
	cmd := NewServerCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--listen", ":9999", "--sessions", "3", "--allowed-origins", "https://a.example.com,https://b.example.com"}))

	flagOptions := config.DefaultOptions()
	flagOptions.Listen = ":9999"
	flagOptions.Model.Sessions = 3
	flagOptions.AllowedOrigins = []string{"https://a.example.com", "https://b.example.com"}

	options, err := loadOptions("", cmd.Flags(), flagOptions)
	require.NoError(t, err)
	assert.Equal(t, ":9999", options.Listen)
	assert.Equal(t, 3, options.Model.Sessions)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, options.AllowedOrigins)
	assert.Equal(t, config.DefaultModelPath, options.Model.Path)
}
