package services

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cadconvert/models"
)

var ErrUnsupportedFormat = errors.New("unsupported output format")

// ExportOp describes how one output format is produced. Kernel-native
// formats carry the canonical token the kernel export endpoint expects;
// OFF is written locally from a tessellated mesh.
type ExportOp struct {
	Kernel     string
	MeshTarget bool
	LocalOFF   bool
}

var exportOps = map[string]ExportOp{
	"step": {Kernel: "step"},
	"stp":  {Kernel: "step"},
	"iges": {Kernel: "iges"},
	"igs":  {Kernel: "iges"},
	"brep": {Kernel: "brep"},
	"brp":  {Kernel: "brep"},
	"stl":  {Kernel: "stl", MeshTarget: true},
	"obj":  {Kernel: "obj", MeshTarget: true},
	"ply":  {Kernel: "ply", MeshTarget: true},
	"off":  {MeshTarget: true, LocalOFF: true},
}

// ResolveExportFormat maps an output format token (case-insensitive,
// aliases included) to its export operation.
func ResolveExportFormat(token string) (ExportOp, error) {
	op, ok := exportOps[strings.ToLower(token)]
	if !ok {
		return ExportOp{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, token)
	}
	return op, nil
}

var meshInputExtensions = map[string]bool{
	".obj": true,
	".stl": true,
	".ply": true,
	".off": true,
}

// IsMeshInput classifies an input path by extension. Mesh formats need a
// mesh-to-shape reconstruction before any solid-targeted export; every
// other extension is handed to the kernel's native shape loader, which
// fails on its own terms if it cannot parse the file.
func IsMeshInput(path string) bool {
	return meshInputExtensions[strings.ToLower(filepath.Ext(path))]
}

// WriteOFF writes a mesh in ASCII OFF: the literal header, a counts line
// with a zero edge-count placeholder, one vertex per line, then one face
// per line as the vertex count followed by zero-based indices.
func WriteOFF(path string, mesh *models.Mesh) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create OFF file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "OFF")
	fmt.Fprintf(w, "%d %d 0\n", len(mesh.Vertices), len(mesh.Faces))
	for _, v := range mesh.Vertices {
		fmt.Fprintf(w, "%g %g %g\n", v[0], v[1], v[2])
	}
	for _, face := range mesh.Faces {
		fmt.Fprintf(w, "%d", len(face))
		for _, idx := range face {
			fmt.Fprintf(w, " %d", idx)
		}
		fmt.Fprintln(w)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write OFF file: %w", err)
	}
	return nil
}
