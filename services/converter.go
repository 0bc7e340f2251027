package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInputNotFound    = errors.New("input file not found")
	ErrConversionFailed = errors.New("conversion failed")
)

// DefaultTolerance is the tessellation tolerance used when a request does
// not configure one.
const DefaultTolerance = 0.1

const documentCloseTimeout = 10 * time.Second

// ConverterService drives the kernel through load, optional mesh
// reconstruction, and export. The kernel supports one active document at
// a time per process, so conversions are serialized behind a mutex and
// the document is closed on every exit path.
type ConverterService struct {
	kernel *KernelService
	mu     sync.Mutex
	logger *zap.Logger
}

func NewConverterService(kernel *KernelService, logger *zap.Logger) *ConverterService {
	return &ConverterService{
		kernel: kernel,
		logger: logger,
	}
}

// Convert produces outputPath from inputPath in the requested format.
// Errors are typed: ErrUnsupportedFormat for an unknown output token,
// ErrInputNotFound for a missing input, and ErrConversionFailed wrapping
// the kernel detail for everything else.
func (c *ConverterService) Convert(ctx context.Context, inputPath, outputPath, outputFormat string, tolerance float64) error {
	op, err := ResolveExportFormat(outputFormat)
	if err != nil {
		return err
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("%w: %s", ErrInputNotFound, inputPath)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	c.logger.Info("starting conversion",
		zap.String("input", inputPath),
		zap.String("output", outputPath),
		zap.String("format", outputFormat),
		zap.Float64("tolerance", tolerance))

	doc, err := c.kernel.OpenDocument(ctx, "conversion-"+uuid.NewString())
	if err != nil {
		return fmt.Errorf("%w: open kernel document: %v", ErrConversionFailed, err)
	}
	defer func() {
		// Close must run even when the request context is already
		// cancelled, so the leftover document cannot leak into the
		// next conversion.
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), documentCloseTimeout)
		defer cancel()
		if err := doc.Close(closeCtx); err != nil {
			c.logger.Warn("failed to close kernel document", zap.Error(err))
		}
	}()

	var shapeID string
	if IsMeshInput(inputPath) {
		shapeID, err = doc.LoadMeshAsShape(ctx, inputPath, tolerance)
	} else {
		shapeID, err = doc.LoadShape(ctx, inputPath)
	}
	if err != nil {
		return fmt.Errorf("%w: load %s: %v", ErrConversionFailed, filepath.Base(inputPath), err)
	}

	if op.LocalOFF {
		mesh, err := doc.Tessellate(ctx, shapeID, tolerance)
		if err != nil {
			return fmt.Errorf("%w: tessellate: %v", ErrConversionFailed, err)
		}
		if err := WriteOFF(outputPath, mesh); err != nil {
			return fmt.Errorf("%w: %v", ErrConversionFailed, err)
		}
	} else {
		if err := doc.ExportShape(ctx, shapeID, op.Kernel, tolerance, outputPath); err != nil {
			return fmt.Errorf("%w: export %s: %v", ErrConversionFailed, op.Kernel, err)
		}
	}

	c.logger.Info("conversion completed",
		zap.String("output", outputPath),
		zap.Duration("duration", time.Since(start)))
	return nil
}
