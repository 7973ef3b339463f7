package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-logr/logr"

	"github.com/Brownie44l1/neuroinsight-api/internal/config"
	apierr "github.com/Brownie44l1/neuroinsight-api/internal/errors"
	"github.com/Brownie44l1/neuroinsight-api/internal/model"
)

const WelcomeMessage = "Welcome to Neuroinsight API"

// FileFields are the multipart fields checked for an upload, in order.
var FileFields = []string{"file", "image"}

type ModelInfoProvider interface {
	Info() model.ModelInfo
}

type Handler struct {
	predictor      *model.Predictor
	info           ModelInfoProvider
	maxUploadBytes int64
}

func NewHandler(predictor *model.Predictor, info ModelInfoProvider, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = config.DefaultMaxUploadBytes
	}
	return &Handler{
		predictor:      predictor,
		info:           info,
		maxUploadBytes: maxUploadBytes,
	}
}

func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	ResponseOK(w, map[string]string{"message": WelcomeMessage})
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Handler) ModelInfo(w http.ResponseWriter, r *http.Request) {
	ResponseOK(w, h.info.Info())
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	log := logr.FromContextOrDiscard(r.Context())

	data, filename, err := h.readUpload(w, r)
	if err != nil {
		ResponseError(w, r, err)
		return
	}
	log.Info("received file", "filename", filename, "size", len(data))

	result, err := h.predictor.Predict(r.Context(), data)
	if err != nil {
		ResponseError(w, r, err)
		return
	}
	ResponseOK(w, result)
}

// readUpload loads the first file part into memory.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		return nil, "", uploadError(err, h.maxUploadBytes)
	}

	var (
		file   multipart.File
		header *multipart.FileHeader
		err    error
	)
	for _, field := range FileFields {
		file, header, err = r.FormFile(field)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, "", apierr.NewParameterInvalidError("no file provided, use 'file' as the form field name")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", uploadError(err, h.maxUploadBytes)
	}
	return data, header.Filename, nil
}

func uploadError(err error, limit int64) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apierr.NewSizeInvalidError(limit)
	}
	return apierr.NewParameterInvalidError("failed to parse multipart form: " + err.Error())
}
