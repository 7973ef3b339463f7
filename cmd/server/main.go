package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Brownie44l1/neuroinsight-api/internal/config"
	"github.com/Brownie44l1/neuroinsight-api/internal/handlers"
	"github.com/Brownie44l1/neuroinsight-api/internal/model"
)

const ErrExitCode = 1

func main() {
	if err := NewServerCmd().Execute(); err != nil {
		fmt.Println(err.Error())
		os.Exit(ErrExitCode)
	}
}

func NewServerCmd() *cobra.Command {
	flagOptions := config.DefaultOptions()
	configFile := ""
	verbosity := 0
	cmd := &cobra.Command{
		Use:          "neuroinsight",
		Short:        "Brain MRI tumor classification API",
		Version:      model.ModelVersion,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			stdr.SetVerbosity(verbosity)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			ctx = logr.NewContext(ctx, stdr.NewWithOptions(log.Default(), stdr.Options{LogCaller: stdr.Error}))

			options, err := loadOptions(configFile, cmd.Flags(), flagOptions)
			if err != nil {
				return err
			}
			return Serve(ctx, options)
		},
	}

	pflags := cmd.PersistentFlags()
	pflags.StringVar(&configFile, "config", configFile, "config file (yaml or json)")
	pflags.IntVarP(&verbosity, "verbose", "v", verbosity, "log verbosity")
	pflags.StringVar(&flagOptions.Model.Path, "model", flagOptions.Model.Path, "model artifact path")
	pflags.StringVar(&flagOptions.Model.SharedLibraryPath, "onnxruntime-lib", flagOptions.Model.SharedLibraryPath, "onnxruntime shared library path")
	pflags.IntVar(&flagOptions.Model.Sessions, "sessions", flagOptions.Model.Sessions, "number of inference sessions")

	flags := cmd.Flags()
	flags.StringVar(&flagOptions.Listen, "listen", flagOptions.Listen, "listen address")
	flags.StringSliceVar(&flagOptions.AllowedOrigins, "allowed-origins", flagOptions.AllowedOrigins, "CORS allowed origins")
	flags.Int64Var(&flagOptions.MaxUploadBytes, "max-upload-bytes", flagOptions.MaxUploadBytes, "maximum upload size")
	flags.Int64Var(&flagOptions.MaxImagePixels, "max-image-pixels", flagOptions.MaxImagePixels, "maximum decoded image size in pixels")
	flags.IntVar(&flagOptions.CacheSize, "cache-size", flagOptions.CacheSize, "prediction cache entries, 0 disables")

	cmd.AddCommand(NewPredictCmd(&configFile, flagOptions))
	return cmd
}

// loadOptions merges config file and environment with flags the user set explicitly.
func loadOptions(configFile string, flags *pflag.FlagSet, flagOptions *config.Options) (*config.Options, error) {
	options, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	overrides := map[string]func(){
		"model":            func() { options.Model.Path = flagOptions.Model.Path },
		"onnxruntime-lib":  func() { options.Model.SharedLibraryPath = flagOptions.Model.SharedLibraryPath },
		"sessions":         func() { options.Model.Sessions = flagOptions.Model.Sessions },
		"listen":           func() { options.Listen = flagOptions.Listen },
		"allowed-origins":  func() { options.AllowedOrigins = flagOptions.AllowedOrigins },
		"max-upload-bytes": func() { options.MaxUploadBytes = flagOptions.MaxUploadBytes },
		"max-image-pixels": func() { options.MaxImagePixels = flagOptions.MaxImagePixels },
		"cache-size":       func() { options.CacheSize = flagOptions.CacheSize },
	}
	for name, apply := range overrides {
		if f := flags.Lookup(name); f != nil && f.Changed {
			apply()
		}
	}
	return options, options.Validate()
}

// LoadModel fetches the artifact when object storage is configured, then loads it.
func LoadModel(ctx context.Context, options *config.ModelOptions) (*model.Server, error) {
	if options.S3.Enabled() {
		if err := model.FetchArtifact(ctx, options.S3, options.Path); err != nil {
			return nil, err
		}
	}
	return model.NewServer(ctx, options)
}

func Serve(ctx context.Context, options *config.Options) error {
	log := logr.FromContextOrDiscard(ctx)

	log.Info("loading model", "path", options.Model.Path)
	modelServer, err := LoadModel(ctx, options.Model)
	if err != nil {
		return err
	}
	defer modelServer.Close()

	predictor := model.NewPredictor(modelServer,
		model.WithCache(options.CacheSize),
		model.WithMaxPixels(options.MaxImagePixels),
	)
	handler := handlers.NewHandler(predictor, modelServer, options.MaxUploadBytes)
	router := handlers.NewRouter(log, handler, options.AllowedOrigins, os.Stdout)

	log.Info("model ready", "classes", model.Labels, "digest", modelServer.Digest().String(),
		"input", modelServer.Input(), "output", modelServer.Output(), "allowedOrigins", options.AllowedOrigins)
	log.Info("endpoints",
		"GET /", "welcome",
		"GET /healthz", "health check",
		"GET /api/v1/model", "model description",
		"POST /api/v1/predict", "predict from image upload (form field 'file')",
	)
	return handlers.Run(ctx, options.Listen, router)
}
