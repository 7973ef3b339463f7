package model

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierr "github.com/Brownie44l1/neuroinsight-api/internal/errors"
	"github.com/Brownie44l1/neuroinsight-api/internal/preprocess"
)

type fakeEngine struct {
	output []float32
	err    error
	calls  atomic.Int32
	input  []float32
}

func (f *fakeEngine) Run(ctx context.Context, input []float32) ([]float32, error) {
	f.calls.Add(1)
	f.input = input
	return f.output, f.err
}

func testPNG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPredictorPredict(t *testing.T) {
	engine := &fakeEngine{output: []float32{0.05, 0.8, 0.1, 0.05}}
	now := time.Date(2025, 1, 2, 3, 4, 5, 600000000, time.Local)
	p := NewPredictor(engine, WithClock(func() time.Time { return now }))

	got, err := p.Predict(context.Background(), testPNG(t, color.White))
	require.NoError(t, err)

	assert.Equal(t, "meningioma", got.PredictedClass)
	assert.Equal(t, 80.0, got.Confidence)
	assert.Equal(t, "2025-01-02T03:04:05.600000", got.Metadata.PredictionTime)
	assert.Len(t, engine.input, preprocess.ImageSize*preprocess.ImageSize*preprocess.Channels)
	assert.Equal(t, float32(1), engine.input[0])
}

func TestPredictorDecodeError(t *testing.T) {
	engine := &fakeEngine{output: []float32{1, 0, 0, 0}}
	p := NewPredictor(engine)

	_, err := p.Predict(context.Background(), []byte("definitely not an image"))
	require.Error(t, err)
	assert.True(t, apierr.IsErrCode(err, apierr.ErrCodeDecode))
	assert.True(t, errors.Is(err, preprocess.ErrDecode))
	assert.Zero(t, engine.calls.Load())
}

func TestPredictorMaxPixels(t *testing.T) {
	engine := &fakeEngine{output: []float32{1, 0, 0, 0}}
	p := NewPredictor(engine, WithMaxPixels(16*16))

	_, err := p.Predict(context.Background(), testPNG(t, color.White))
	require.Error(t, err)
	assert.True(t, apierr.IsErrCode(err, apierr.ErrCodeDecode))
	assert.Zero(t, engine.calls.Load())
}

func TestPredictorEngineError(t *testing.T) {
	engine := &fakeEngine{err: errors.New("session crashed")}
	p := NewPredictor(engine)

	_, err := p.Predict(context.Background(), testPNG(t, color.Black))
	require.Error(t, err)
	assert.False(t, apierr.IsErrCode(err, apierr.ErrCodeDecode))
}

func TestPredictorCache(t *testing.T) {
	engine := &fakeEngine{output: []float32{0.7, 0.1, 0.1, 0.1}}
	tick := time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local)
	p := NewPredictor(engine, WithCache(8), WithClock(func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}))

	data := testPNG(t, color.Gray{Y: 120})
	first, err := p.Predict(context.Background(), data)
	require.NoError(t, err)
	second, err := p.Predict(context.Background(), data)
	require.NoError(t, err)

	assert.Equal(t, int32(1), engine.calls.Load())
	assert.Equal(t, first.PredictedClass, second.PredictedClass)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.Probabilities, second.Probabilities)
	assert.NotEqual(t, first.Metadata.PredictionTime, second.Metadata.PredictionTime)

	_, err = p.Predict(context.Background(), testPNG(t, color.White))
	require.NoError(t, err)
	assert.Equal(t, int32(2), engine.calls.Load())
}

func TestPredictorWithoutCache(t *testing.T) {
	engine := &fakeEngine{output: []float32{0.7, 0.1, 0.1, 0.1}}
	p := NewPredictor(engine, WithCache(0))

	data := testPNG(t, color.White)
	for i := 0; i < 3; i++ {
		_, err := p.Predict(context.Background(), data)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), engine.calls.Load())
}
