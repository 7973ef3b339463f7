package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrShape = errors.New("tensor shape mismatch")

// Assemble maps a raw output vector onto Labels. Ties go to the lowest index.
func Assemble(output []float32, now time.Time) (*Prediction, error) {
	if len(output) < len(Labels) {
		return nil, fmt.Errorf("%w: got %d outputs, want %d", ErrShape, len(output), len(Labels))
	}

	maxIdx := 0
	maxVal := output[0]
	probabilities := make(Probabilities, len(Labels))
	for i, label := range Labels {
		val := output[i]
		probabilities[i] = Probability{Label: label, Value: percent(val)}
		if val > maxVal {
			maxVal = val
			maxIdx = i
		}
	}

	predicted := Labels[maxIdx]
	info, _ := InformationFor(predicted)
	return &Prediction{
		PredictedClass: predicted,
		Confidence:     percent(maxVal),
		Information:    info,
		Probabilities:  probabilities,
		Metadata: Metadata{
			ModelVersion:   ModelVersion,
			InputShape:     InputShapeSummary,
			PredictionTime: FormatTime(now),
		},
	}, nil
}

// percent scales to 0-100 and rounds to two decimals, ties to even.
// float64(v)*10000 is exact for any float32, so ties are real ties.
func percent(v float32) float64 {
	return math.RoundToEven(float64(v)*10000) / 100
}

// FormatTime renders an ISO-8601 local timestamp, omitting the fraction when
// it is below one microsecond.
func FormatTime(t time.Time) string {
	if t.Nanosecond()/1000 == 0 {
		return t.Format(TimeFormatSeconds)
	}
	return t.Format(TimeFormat)
}
