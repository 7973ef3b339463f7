package model

import (
	"bytes"
	"encoding/json"
	"strconv"
)

const (
	ModelVersion      = "v1.0"
	InputShapeSummary = "150x150 RGB"
	TimeFormat        = "2006-01-02T15:04:05.000000"
	TimeFormatSeconds = "2006-01-02T15:04:05"
)

// Labels is ordered by output tensor column.
var Labels = []string{"glioma", "meningioma", "notumor", "pituitary"}

type TensorInfo struct {
	Name     string  `json:"name"`
	Shape    []int64 `json:"shape"`
	DataType string  `json:"dtype"`
}

type ModelInfo struct {
	ModelVersion string     `json:"model_version"`
	InputShape   string     `json:"input_shape"`
	Labels       []string   `json:"labels"`
	Digest       string     `json:"digest,omitempty"`
	Input        TensorInfo `json:"input"`
	Output       TensorInfo `json:"output"`
}

type Information struct {
	Description string `json:"description"`
}

type Metadata struct {
	ModelVersion   string `json:"model_version"`
	InputShape     string `json:"input_shape"`
	PredictionTime string `json:"prediction_time"`
}

type Prediction struct {
	PredictedClass string        `json:"predicted_class"`
	Confidence     float64       `json:"confidence"`
	Information    Information   `json:"information"`
	Probabilities  Probabilities `json:"probabilities"`
	Metadata       Metadata      `json:"metadata"`
}

type Probability struct {
	Label string
	Value float64
}

// Probabilities keeps label order when encoded as a JSON object.
type Probabilities []Probability

func (p Probabilities) Get(label string) (float64, bool) {
	for _, prob := range p {
		if prob.Label == label {
			return prob.Value, true
		}
	}
	return 0, false
}

func (p Probabilities) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, prob := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(prob.Label)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatFloat(prob.Value, 'f', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p *Probabilities) UnmarshalJSON(data []byte) error {
	values := map[string]float64{}
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	out := make(Probabilities, 0, len(values))
	for _, label := range Labels {
		if v, ok := values[label]; ok {
			out = append(out, Probability{Label: label, Value: v})
			delete(values, label)
		}
	}
	for label, v := range values {
		out = append(out, Probability{Label: label, Value: v})
	}
	*p = out
	return nil
}
