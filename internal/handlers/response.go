package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-logr/logr"

	apierr "github.com/Brownie44l1/neuroinsight-api/internal/errors"
)

// ResponseError writes err as an ErrorInfo. Errors that are not ErrorInfo are
// reported as internal and only their cause is logged.
func ResponseError(w http.ResponseWriter, r *http.Request, err error) {
	info := apierr.ErrorInfo{}
	if !errors.As(err, &info) {
		info = apierr.NewInternalError(err)
	}
	if info.HttpStatus >= http.StatusInternalServerError {
		logr.FromContextOrDiscard(r.Context()).Error(err, "request failed", "path", r.URL.Path)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(info.HttpStatus)
	json.NewEncoder(w).Encode(info)
}

func ResponseOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(data)
}
