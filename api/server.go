package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"cadconvert/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Converter produces an output file from an input file. Errors are typed
// (services.ErrUnsupportedFormat, services.ErrInputNotFound,
// services.ErrConversionFailed).
type Converter interface {
	Convert(ctx context.Context, inputPath, outputPath, outputFormat string, tolerance float64) error
}

// Ledger tracks per-job status in the document store.
type Ledger interface {
	Create(ctx context.Context, bucket, organizationID, outputFile string) (string, error)
	Advance(ctx context.Context, id string, to models.Status) error
	Fail(ctx context.Context, id, reason string) error
	Complete(ctx context.Context, id string, link *string) error
	Get(ctx context.Context, id string) (*models.ConversionJob, error)
}

// Publisher uploads artifacts and issues presigned retrieval links.
type Publisher interface {
	Upload(ctx context.Context, localPath, bucket, key string) error
	Presign(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
	Cleanup(path string) error
}

type Server struct {
	Converter     Converter
	Ledger        Ledger
	Publisher     Publisher
	WorkDir       string
	Tolerance     float64
	PresignExpiry time.Duration
	Logger        *zap.Logger
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/convert", s.handleConvert)
	r.Get("/convert/{id}", s.handleGetConversion)

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
