package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

const RequestIDHeader = "X-Request-Id"

func (h *Handler) route() *mux.Router {
	mux := mux.NewRouter()
	mux = mux.StrictSlash(true)
	// liveness
	mux.Methods("GET").Path("/").HandlerFunc(h.Root)
	mux.Methods("GET").Path("/healthz").HandlerFunc(h.Healthz)

	v1 := mux.PathPrefix("/api/v1").Subrouter()
	v1.Methods("GET").Path("/model").HandlerFunc(h.ModelInfo)
	v1.Methods("POST").Path("/predict").HandlerFunc(h.Predict)
	return mux
}

// NewRouter wraps the routes with CORS, access logging, panic recovery and
// request IDs. Access logs go to accessLog when it is not nil.
func NewRouter(log logr.Logger, h *Handler, allowedOrigins []string, accessLog io.Writer) http.Handler {
	var handler http.Handler = h.route()
	handler = CORSFilter(allowedOrigins, handler)
	if accessLog != nil {
		handler = handlers.CombinedLoggingHandler(accessLog, handler)
	}
	handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{log}),
		handlers.PrintRecoveryStack(true),
	)(handler)
	handler = RequestIDFilter(log, handler)
	return handler
}

// CORSFilter allows the listed origins ("*" allows any), every method and
// header, and credentials.
func CORSFilter(allowedOrigins []string, next http.Handler) http.Handler {
	allowed := map[string]bool{}
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}
	return cors.New(cors.Options{
		AllowOriginFunc: func(origin string) bool {
			return allowed["*"] || allowed[origin]
		},
		AllowedMethods: []string{
			http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(next)
}

// RequestIDFilter tags the request context logger with an ID, reusing the
// caller's X-Request-Id when present.
func RequestIDFilter(log logr.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		base := log
		if ctxlog, err := logr.FromContext(r.Context()); err == nil {
			base = ctxlog
		}
		ctx := logr.NewContext(r.Context(), base.WithValues("request_id", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type recoveryLogger struct {
	log logr.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.log.Error(fmt.Errorf("%s", fmt.Sprint(v...)), "panic recovered")
}
