package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbabilitiesJSON(t *testing.T) {
	probs := Probabilities{
		{Label: "glioma", Value: 12.5},
		{Label: "meningioma", Value: 0.01},
		{Label: "notumor", Value: 80},
		{Label: "pituitary", Value: 7.49},
	}
	raw, err := json.Marshal(probs)
	require.NoError(t, err)
	assert.Equal(t, `{"glioma":12.5,"meningioma":0.01,"notumor":80,"pituitary":7.49}`, string(raw))

	var decoded Probabilities
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, probs, decoded)
}

func TestPredictionJSONFields(t *testing.T) {
	prediction := Prediction{
		PredictedClass: "notumor",
		Confidence:     80,
		Information:    Information{Description: "normal"},
		Probabilities:  Probabilities{{Label: "notumor", Value: 80}},
		Metadata:       Metadata{ModelVersion: ModelVersion, InputShape: InputShapeSummary, PredictionTime: "2024-01-01T00:00:00.000000"},
	}
	raw, err := json.Marshal(prediction)
	require.NoError(t, err)

	fields := map[string]json.RawMessage{}
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{"predicted_class", "confidence", "information", "probabilities", "metadata"} {
		assert.Contains(t, fields, key)
	}
	assert.JSONEq(t, `{"description":"normal"}`, string(fields["information"]))
	assert.JSONEq(t, `{"model_version":"v1.0","input_shape":"150x150 RGB","prediction_time":"2024-01-01T00:00:00.000000"}`, string(fields["metadata"]))
}
