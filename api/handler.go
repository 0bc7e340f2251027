package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"cadconvert/models"
	"cadconvert/services"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type convertRequest struct {
	InputFile      string `json:"input_file"`
	OutputFormat   string `json:"output_format"`
	OrganizationID string `json:"organization_id"`
	S3Bucket       string `json:"s3_bucket"`
}

type convertResponse struct {
	Message        string  `json:"message"`
	OutputFile     string  `json:"output_file"`
	ConversionID   string  `json:"conversion_id"`
	S3DownloadLink *string `json:"s3_download_link"`
}

type errorResponse struct {
	Error        string `json:"error"`
	ConversionID string `json:"conversion_id,omitempty"`
}

// handleConvert drives one conversion job end to end: create the ledger
// record, convert, optionally publish, finalize. Each failure mode marks
// the job FAILED with its reason so the caller can poll the record after
// the response.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	// A client disconnect must not abort an in-progress conversion or
	// strand the record without a terminal status, so the pipeline runs
	// detached from the request's cancellation.
	ctx := context.WithoutCancel(r.Context())

	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if req.InputFile == "" || req.OutputFormat == "" || req.OrganizationID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "Missing required parameters: input_file, output_format, organization_id",
		})
		return
	}

	outputFile := deriveOutputFile(req.InputFile, req.OutputFormat)

	id, err := s.Ledger.Create(ctx, req.S3Bucket, req.OrganizationID, outputFile)
	if err != nil {
		s.Logger.Error("failed to create conversion record", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	log := s.Logger.With(zap.String("conversion_id", id))

	if err := s.Ledger.Advance(ctx, id, models.StatusProcessing); err != nil {
		// The record is still PENDING; continuing would make every later
		// transition illegal, so the request stops here.
		log.Error("failed to update conversion status", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), ConversionID: id})
		return
	}

	// Each job converts into its own directory so concurrent requests
	// with the same input base name cannot clobber each other.
	jobDir := filepath.Join(s.WorkDir, id)
	outputPath := filepath.Join(jobDir, outputFile)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		s.failJob(ctx, id, err.Error())
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), ConversionID: id})
		return
	}

	if err := s.Converter.Convert(ctx, req.InputFile, outputPath, req.OutputFormat, s.Tolerance); err != nil {
		s.failJob(ctx, id, err.Error())
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), ConversionID: id})
		return
	}

	if err := s.Ledger.Advance(ctx, id, models.StatusUploading); err != nil {
		s.failJob(ctx, id, err.Error())
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), ConversionID: id})
		return
	}

	var link *string
	if req.S3Bucket != "" {
		if err := s.Publisher.Upload(ctx, outputPath, req.S3Bucket, ""); err != nil {
			s.failJob(ctx, id, err.Error())
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), ConversionID: id})
			return
		}

		url, err := s.Publisher.Presign(ctx, req.S3Bucket, filepath.Base(outputPath), s.PresignExpiry)
		if err != nil {
			s.failJob(ctx, id, err.Error())
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), ConversionID: id})
			return
		}
		link = &url

		// The artifact now lives in S3; the local copy is scratch.
		if err := s.Publisher.Cleanup(outputPath); err != nil {
			log.Warn("failed to remove local artifact", zap.Error(err))
		} else if err := s.Publisher.Cleanup(jobDir); err != nil {
			log.Warn("failed to remove job directory", zap.Error(err))
		}
	}

	if err := s.Ledger.Complete(ctx, id, link); err != nil {
		// A job that cannot be finalized must not be reported as a
		// success: the record would sit in UPLOADING forever.
		s.failJob(ctx, id, err.Error())
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), ConversionID: id})
		return
	}

	writeJSON(w, http.StatusOK, convertResponse{
		Message:        "File converted and uploaded successfully",
		OutputFile:     outputFile,
		ConversionID:   id,
		S3DownloadLink: link,
	})
}

// handleGetConversion exposes the ledger record for polling.
func (s *Server) handleGetConversion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.Ledger.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrJobNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) failJob(ctx context.Context, id, reason string) {
	if err := s.Ledger.Fail(ctx, id, reason); err != nil {
		s.Logger.Error("failed to mark conversion failed",
			zap.String("conversion_id", id),
			zap.Error(err))
	}
}

// deriveOutputFile builds the output name from the input's base name and
// the requested format's lowercase extension.
func deriveOutputFile(inputFile, outputFormat string) string {
	base := filepath.Base(inputFile)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return base + "." + strings.ToLower(outputFormat)
}
