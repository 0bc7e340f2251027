package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cadconvert/models"

	"go.uber.org/zap"
)

// KernelService talks to the CAD kernel daemon over HTTP. The daemon owns
// all geometry: format parsers and exporters, mesh-to-shape
// reconstruction, and tessellation. It holds one meaningfully active
// document at a time, so callers scope every conversion to a document
// opened and closed around it.
type KernelService struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewKernelService(baseURL string, logger *zap.Logger) *KernelService {
	return &KernelService{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 0, // Use context timeout instead
		},
		logger: logger,
	}
}

// KernelDocument is a working session in the kernel. Close must be called
// on every exit path; a document left open leaks kernel-side memory
// across requests.
type KernelDocument struct {
	kernel *KernelService
	name   string
}

func (k *KernelService) OpenDocument(ctx context.Context, name string) (*KernelDocument, error) {
	payload, _ := json.Marshal(map[string]string{"name": name})
	endpoint := fmt.Sprintf("%s/documents", k.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kernel request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, kernelError(resp)
	}

	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode kernel response: %w", err)
	}
	if body.Name == "" {
		body.Name = name
	}

	k.logger.Debug("opened kernel document", zap.String("document", body.Name))
	return &KernelDocument{kernel: k, name: body.Name}, nil
}

// LoadShape uploads a solid/surface model file (STEP, IGES, BREP, ...)
// and returns the kernel's shape handle.
func (d *KernelDocument) LoadShape(ctx context.Context, inputPath string) (string, error) {
	fields := url.Values{}
	fields.Set("mode", "shape")
	return d.load(ctx, inputPath, fields)
}

// LoadMeshAsShape uploads a mesh file (OBJ, STL, PLY, OFF) and has the
// kernel reconstruct a shape from it. Tolerance controls how aggressively
// near-coincident mesh features are merged.
func (d *KernelDocument) LoadMeshAsShape(ctx context.Context, inputPath string, tolerance float64) (string, error) {
	fields := url.Values{}
	fields.Set("mode", "mesh")
	fields.Set("tolerance", formatTolerance(tolerance))
	return d.load(ctx, inputPath, fields)
}

func (d *KernelDocument) load(ctx context.Context, inputPath string, fields url.Values) (string, error) {
	file, err := os.Open(inputPath)
	if err != nil {
		return "", fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(inputPath))
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("failed to copy file: %w", err)
	}
	for key := range fields {
		writer.WriteField(key, fields.Get(key))
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %w", err)
	}

	endpoint := fmt.Sprintf("%s/documents/%s/shapes", d.kernel.baseURL, url.PathEscape(d.name))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.kernel.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("kernel request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", kernelError(resp)
	}

	var loaded struct {
		Shape string `json:"shape"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loaded); err != nil {
		return "", fmt.Errorf("failed to decode kernel response: %w", err)
	}
	return loaded.Shape, nil
}

// ExportShape writes a shape to outputPath in a kernel-native format.
// Mesh-target formats are re-tessellated kernel-side with the tolerance.
func (d *KernelDocument) ExportShape(ctx context.Context, shapeID, format string, tolerance float64, outputPath string) error {
	form := url.Values{}
	form.Set("format", format)
	form.Set("tolerance", formatTolerance(tolerance))

	endpoint := fmt.Sprintf("%s/documents/%s/shapes/%s/export",
		d.kernel.baseURL, url.PathEscape(d.name), url.PathEscape(shapeID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.kernel.client.Do(req)
	if err != nil {
		return fmt.Errorf("kernel request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return kernelError(resp)
	}

	outFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer outFile.Close()

	if _, err := io.Copy(outFile, resp.Body); err != nil {
		return fmt.Errorf("failed to save exported file: %w", err)
	}
	return nil
}

// Tessellate returns the shape's mesh (vertices and faces) for formats
// this service writes itself.
func (d *KernelDocument) Tessellate(ctx context.Context, shapeID string, tolerance float64) (*models.Mesh, error) {
	form := url.Values{}
	form.Set("tolerance", formatTolerance(tolerance))

	endpoint := fmt.Sprintf("%s/documents/%s/shapes/%s/mesh",
		d.kernel.baseURL, url.PathEscape(d.name), url.PathEscape(shapeID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.kernel.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kernel request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, kernelError(resp)
	}

	var mesh models.Mesh
	if err := json.NewDecoder(resp.Body).Decode(&mesh); err != nil {
		return nil, fmt.Errorf("failed to decode mesh: %w", err)
	}
	return &mesh, nil
}

// Close releases the kernel document.
func (d *KernelDocument) Close(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/documents/%s", d.kernel.baseURL, url.PathEscape(d.name))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.kernel.client.Do(req)
	if err != nil {
		return fmt.Errorf("kernel request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return kernelError(resp)
	}
	return nil
}

func kernelError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("kernel returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
}

func formatTolerance(tolerance float64) string {
	return strconv.FormatFloat(tolerance, 'g', -1, 64)
}
