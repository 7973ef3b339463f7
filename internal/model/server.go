package model

import (
	"context"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/opencontainers/go-digest"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/neuroinsight-api/internal/config"
	apierr "github.com/Brownie44l1/neuroinsight-api/internal/errors"
	"github.com/Brownie44l1/neuroinsight-api/internal/preprocess"
)

var (
	InputShape  = []int64{1, preprocess.ImageSize, preprocess.ImageSize, preprocess.Channels}
	OutputShape = []int64{1, int64(len(Labels))}
)

// Engine runs one forward pass over a preprocessed input tensor.
type Engine interface {
	Run(ctx context.Context, input []float32) ([]float32, error)
}

var _ Engine = &Server{}

type session struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

func (s *session) destroy() {
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
}

// Server owns the loaded model. A session is not safe for concurrent Run, so
// each one is checked out of the pool for the duration of a forward pass.
type Server struct {
	pool     chan *session
	sessions []*session
	input    TensorInfo
	output   TensorInfo
	digest   digest.Digest
}

func NewServer(ctx context.Context, opts *config.ModelOptions) (*Server, error) {
	log := logr.FromContextOrDiscard(ctx)

	content, err := os.ReadFile(opts.Path)
	if err != nil {
		return nil, apierr.NewStartupError("failed to read model artifact", err)
	}
	dgst := digest.FromBytes(content)
	log.Info("model artifact found", "path", opts.Path, "digest", dgst.String(), "size", len(content))

	if opts.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(opts.SharedLibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, apierr.NewStartupError("failed to initialize ONNX environment", err)
		}
	}

	input, output, err := describe(opts)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, err
	}

	sessions := opts.Sessions
	if sessions < 1 {
		sessions = 1
	}
	s := &Server{
		pool:   make(chan *session, sessions),
		input:  input,
		output: output,
		digest: dgst,
	}
	for i := 0; i < sessions; i++ {
		sess, err := newSession(opts.Path, input.Name, output.Name)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.sessions = append(s.sessions, sess)
		s.pool <- sess
	}
	log.Info("model loaded", "input", input.Name, "output", output.Name, "sessions", sessions)
	return s, nil
}

// describe reads the declared input/output tensors and checks them against
// the shapes the preprocessor and assembler rely on.
func describe(opts *config.ModelOptions) (TensorInfo, TensorInfo, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(opts.Path)
	if err != nil {
		return TensorInfo{}, TensorInfo{}, apierr.NewStartupError("failed to read model tensors", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return TensorInfo{}, TensorInfo{}, apierr.NewStartupError(
			fmt.Sprintf("model must have exactly one input and one output, got %d and %d", len(inputs), len(outputs)), nil)
	}

	in, out := inputs[0], outputs[0]
	if opts.InputName != "" && opts.InputName != in.Name {
		return TensorInfo{}, TensorInfo{}, apierr.NewStartupError(fmt.Sprintf("model has no input named %q", opts.InputName), nil)
	}
	if opts.OutputName != "" && opts.OutputName != out.Name {
		return TensorInfo{}, TensorInfo{}, apierr.NewStartupError(fmt.Sprintf("model has no output named %q", opts.OutputName), nil)
	}
	if in.DataType != ort.TensorElementDataTypeFloat || out.DataType != ort.TensorElementDataTypeFloat {
		return TensorInfo{}, TensorInfo{}, apierr.NewStartupError("model tensors must be float32", nil)
	}
	if !shapeCompatible(in.Dimensions, InputShape) {
		return TensorInfo{}, TensorInfo{}, apierr.NewStartupError(fmt.Sprintf("input shape %v, want %v", in.Dimensions, InputShape), nil)
	}
	if !shapeCompatible(out.Dimensions, OutputShape) {
		return TensorInfo{}, TensorInfo{}, apierr.NewStartupError(fmt.Sprintf("output shape %v, want %v", out.Dimensions, OutputShape), nil)
	}

	return TensorInfo{Name: in.Name, Shape: InputShape, DataType: "float32"},
		TensorInfo{Name: out.Name, Shape: OutputShape, DataType: "float32"}, nil
}

// shapeCompatible treats non-positive declared dimensions as dynamic.
func shapeCompatible(declared []int64, want []int64) bool {
	if len(declared) != len(want) {
		return false
	}
	for i, dim := range declared {
		if dim > 0 && dim != want[i] {
			return false
		}
	}
	return true
}

func elements(shape []int64) int {
	n := 1
	for _, dim := range shape {
		n *= int(dim)
	}
	return n
}

func newSession(path, inputName, outputName string) (*session, error) {
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(InputShape...))
	if err != nil {
		return nil, apierr.NewStartupError("failed to create input tensor", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, apierr.NewStartupError("failed to create output tensor", err)
	}

	sess, err := ort.NewAdvancedSession(path,
		[]string{inputName}, []string{outputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, apierr.NewStartupError("failed to create ONNX session", err)
	}

	return &session{
		session:      sess,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (s *Server) Run(ctx context.Context, input []float32) ([]float32, error) {
	size := elements(InputShape)
	if len(input) != size {
		return nil, fmt.Errorf("%w: got %d input values, want %d", ErrShape, len(input), size)
	}

	var sess *session
	select {
	case sess = <-s.pool:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { s.pool <- sess }()

	copy(sess.inputTensor.GetData(), input)
	if err := sess.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	outputData := sess.outputTensor.GetData()
	output := make([]float32, len(outputData))
	copy(output, outputData)
	return output, nil
}

func (s *Server) Input() TensorInfo {
	return s.input
}

func (s *Server) Output() TensorInfo {
	return s.output
}

func (s *Server) Digest() digest.Digest {
	return s.digest
}

func (s *Server) Info() ModelInfo {
	return ModelInfo{
		ModelVersion: ModelVersion,
		InputShape:   InputShapeSummary,
		Labels:       Labels,
		Digest:       s.digest.String(),
		Input:        s.input,
		Output:       s.output,
	}
}

// Close waits for every session to come back to the pool, so a forward pass
// still running after server shutdown never sees its tensors destroyed.
func (s *Server) Close() {
	s.release()
	ort.DestroyEnvironment()
}

func (s *Server) release() {
	for range s.sessions {
		<-s.pool
	}
	for _, sess := range s.sessions {
		sess.destroy()
	}
	s.sessions = nil
}
