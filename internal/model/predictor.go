package model

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/opencontainers/go-digest"

	apierr "github.com/Brownie44l1/neuroinsight-api/internal/errors"
	"github.com/Brownie44l1/neuroinsight-api/internal/preprocess"
)

type PredictorOption func(*Predictor)

// WithCache keeps the raw output of the last size distinct uploads.
func WithCache(size int) PredictorOption {
	return func(p *Predictor) {
		if size <= 0 {
			return
		}
		cache, err := lru.New[digest.Digest, []float32](size)
		if err == nil {
			p.cache = cache
		}
	}
}

// WithMaxPixels rejects uploads whose decoded size would exceed maxPixels.
func WithMaxPixels(maxPixels int64) PredictorOption {
	return func(p *Predictor) {
		p.maxPixels = maxPixels
	}
}

func WithClock(now func() time.Time) PredictorOption {
	return func(p *Predictor) {
		p.now = now
	}
}

// Predictor runs the decode, inference and assembly steps for one upload.
type Predictor struct {
	engine Engine
	cache     *lru.Cache[digest.Digest, []float32]
	maxPixels int64
	now       func() time.Time
}

func NewPredictor(engine Engine, opts ...PredictorOption) *Predictor {
	p := &Predictor{engine: engine, maxPixels: preprocess.DefaultMaxPixels, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Predictor) Predict(ctx context.Context, data []byte) (*Prediction, error) {
	log := logr.FromContextOrDiscard(ctx)

	dgst := digest.FromBytes(data)
	output, ok := p.cached(dgst)
	if !ok {
		input, err := preprocess.Image(data, preprocess.ImageSize, p.maxPixels)
		if err != nil {
			return nil, apierr.NewDecodeError(err)
		}
		output, err = p.engine.Run(ctx, input)
		if err != nil {
			return nil, err
		}
		if p.cache != nil {
			p.cache.Add(dgst, output)
		}
	}

	prediction, err := Assemble(output, p.now())
	if err != nil {
		return nil, err
	}
	log.V(1).Info("prediction", "digest", dgst.String(), "class", prediction.PredictedClass,
		"confidence", prediction.Confidence, "cached", ok)
	return prediction, nil
}

func (p *Predictor) cached(dgst digest.Digest) ([]float32, bool) {
	if p.cache == nil {
		return nil, false
	}
	return p.cache.Get(dgst)
}
