package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"sigs.k8s.io/yaml"

	"github.com/Brownie44l1/neuroinsight-api/internal/preprocess"
)

const (
	DefaultModelPath      = "output/neuroinsight.onnx"
	DefaultListen         = ":8080"
	DefaultMaxUploadBytes = int64(10 << 20) // 10MB
	DefaultMaxImagePixels = preprocess.DefaultMaxPixels
)

type Options struct {
	Listen         string        `json:"listen,omitempty"`
	AllowedOrigins []string      `json:"allowedOrigins,omitempty"`
	MaxUploadBytes int64         `json:"maxUploadBytes,omitempty"`
	MaxImagePixels int64         `json:"maxImagePixels,omitempty"`
	CacheSize      int           `json:"cacheSize,omitempty"`
	Model          *ModelOptions `json:"model,omitempty"`
}

type ModelOptions struct {
	Path              string     `json:"path,omitempty"`
	SharedLibraryPath string     `json:"sharedLibraryPath,omitempty"`
	InputName         string     `json:"inputName,omitempty"`
	OutputName        string     `json:"outputName,omitempty"`
	Sessions          int        `json:"sessions,omitempty"`
	S3                *S3Options `json:"s3,omitempty"`
}

type S3Options struct {
	URL       string `json:"url,omitempty"`
	Region    string `json:"region,omitempty"`
	Bucket    string `json:"bucket,omitempty"`
	Key       string `json:"key,omitempty"`
	AccessKey string `json:"accessKey,omitempty"`
	SecretKey string `json:"secretKey,omitempty"`
	PathStyle bool   `json:"pathStyle,omitempty"`
}

// Enabled reports whether the model artifact should be fetched from object storage.
func (o *S3Options) Enabled() bool {
	return o != nil && o.Bucket != "" && o.Key != ""
}

func DefaultOptions() *Options {
	return &Options{
		Listen:         DefaultListen,
		AllowedOrigins: []string{},
		MaxUploadBytes: DefaultMaxUploadBytes,
		MaxImagePixels: DefaultMaxImagePixels,
		CacheSize:      0,
		Model: &ModelOptions{
			Path:     DefaultModelPath,
			Sessions: 1,
			S3:       &S3Options{PathStyle: true},
		},
	}
}

// Load builds options from defaults, then the config file at path (if any),
// then .env and the process environment.
func Load(path string) (*Options, error) {
	opts := DefaultOptions()
	if path != "" {
		if err := loadFile(path, opts); err != nil {
			return nil, err
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(opts, os.LookupEnv); err != nil {
		return nil, err
	}
	return opts, opts.Validate()
}

func loadFile(path string, opts *Options) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(content, opts); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	// an explicit null section resets to defaults instead of leaving nil
	defaults := DefaultOptions()
	if opts.Model == nil {
		opts.Model = defaults.Model
	}
	if opts.Model.S3 == nil {
		opts.Model.S3 = defaults.Model.S3
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(opts *Options, lookup lookupFunc) error {
	if port, ok := lookup("PORT"); ok && port != "" {
		opts.Listen = ":" + port
	}
	if listen, ok := lookup("LISTEN"); ok && listen != "" {
		opts.Listen = listen
	}
	if origins, ok := lookup("ALLOWED_ORIGINS"); ok {
		opts.AllowedOrigins = SplitOrigins(origins)
	}
	if val, ok := lookup("MODEL_PATH"); ok && val != "" {
		opts.Model.Path = val
	}
	if val, ok := lookup("ONNXRUNTIME_LIB"); ok && val != "" {
		opts.Model.SharedLibraryPath = val
	}
	if val, ok := lookup("MODEL_INPUT_NAME"); ok && val != "" {
		opts.Model.InputName = val
	}
	if val, ok := lookup("MODEL_OUTPUT_NAME"); ok && val != "" {
		opts.Model.OutputName = val
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"MODEL_SESSIONS", &opts.Model.Sessions},
		{"CACHE_SIZE", &opts.CacheSize},
	}
	for _, it := range ints {
		val, ok := lookup(it.key)
		if !ok || val == "" {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("env %s: %w", it.key, err)
		}
		*it.dst = n
	}
	int64s := []struct {
		key string
		dst *int64
	}{
		{"MAX_UPLOAD_BYTES", &opts.MaxUploadBytes},
		{"MAX_IMAGE_PIXELS", &opts.MaxImagePixels},
	}
	for _, it := range int64s {
		val, ok := lookup(it.key)
		if !ok || val == "" {
			continue
		}
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("env %s: %w", it.key, err)
		}
		*it.dst = n
	}

	s3 := opts.Model.S3
	for key, dst := range map[string]*string{
		"MODEL_S3_URL":        &s3.URL,
		"MODEL_S3_REGION":     &s3.Region,
		"MODEL_S3_BUCKET":     &s3.Bucket,
		"MODEL_S3_KEY":        &s3.Key,
		"MODEL_S3_ACCESS_KEY": &s3.AccessKey,
		"MODEL_S3_SECRET_KEY": &s3.SecretKey,
	} {
		if val, ok := lookup(key); ok && val != "" {
			*dst = val
		}
	}
	if val, ok := lookup("MODEL_S3_PATH_STYLE"); ok && val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("env MODEL_S3_PATH_STYLE: %w", err)
		}
		s3.PathStyle = b
	}
	return nil
}

// SplitOrigins parses a comma separated origin list, dropping blanks.
func SplitOrigins(raw string) []string {
	origins := []string{}
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func (o *Options) Validate() error {
	if o.Model == nil || o.Model.Path == "" {
		return errors.New("model path is required")
	}
	if o.Model.Sessions < 1 {
		return fmt.Errorf("model sessions must be at least 1, got %d", o.Model.Sessions)
	}
	if o.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive, got %d", o.MaxUploadBytes)
	}
	if o.MaxImagePixels <= 0 {
		return fmt.Errorf("max image pixels must be positive, got %d", o.MaxImagePixels)
	}
	return nil
}
