package services

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cadconvert/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveExportFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		token      string
		kernel     string
		meshTarget bool
		localOFF   bool
	}{
		{"step", "step", false, false},
		{"stp", "step", false, false},
		{"iges", "iges", false, false},
		{"igs", "iges", false, false},
		{"brep", "brep", false, false},
		{"brp", "brep", false, false},
		{"stl", "stl", true, false},
		{"obj", "obj", true, false},
		{"ply", "ply", true, false},
		{"off", "", true, true},
		{"STEP", "step", false, false},
		{"Stl", "stl", true, false},
		{"OFF", "", true, true},
	}
	for _, tt := range tests {
		op, err := ResolveExportFormat(tt.token)
		require.NoError(t, err, "token %q", tt.token)
		assert.Equal(t, tt.kernel, op.Kernel, "token %q", tt.token)
		assert.Equal(t, tt.meshTarget, op.MeshTarget, "token %q", tt.token)
		assert.Equal(t, tt.localOFF, op.LocalOFF, "token %q", tt.token)
	}
}

func TestResolveExportFormatRejectsUnknown(t *testing.T) {
	t.Parallel()

	for _, token := range []string{"", "pdf", "dxf", "stepp", "st l", "gltf"} {
		_, err := ResolveExportFormat(token)
		assert.ErrorIs(t, err, ErrUnsupportedFormat, "token %q", token)
	}
}

func TestIsMeshInput(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"part.obj", "part.stl", "part.ply", "part.off", "dir/PART.STL", "a.b.Obj"} {
		assert.True(t, IsMeshInput(path), "path %q", path)
	}
	// Everything else is handed to the native shape loader, including
	// extensions the kernel will end up rejecting.
	for _, path := range []string{"part.step", "part.iges", "part.brep", "part.stp", "part.txt", "part", "part.stl.gz"} {
		assert.False(t, IsMeshInput(path), "path %q", path)
	}
}

func TestWriteOFFRoundTrip(t *testing.T) {
	t.Parallel()

	mesh := &models.Mesh{
		Vertices: [][3]float64{
			{0, 0, 0},
			{1, 0, 0},
			{0, 1, 0},
			{0, 0, 1.5},
		},
		Faces: [][]int{
			{0, 1, 2},
			{0, 1, 3},
			{1, 2, 3},
			{0, 2, 3},
		},
	}

	path := filepath.Join(t.TempDir(), "part.off")
	require.NoError(t, WriteOFF(path, mesh))

	vertices, faces := parseOFF(t, path)
	assert.Equal(t, len(mesh.Vertices), len(vertices))
	assert.Equal(t, len(mesh.Faces), len(faces))
	assert.Equal(t, []float64{0, 0, 1.5}, vertices[3])
	assert.Equal(t, []int{3, 1, 2, 3}, faces[2], "face line is vertex count then indices")
}

func TestWriteOFFEmptyMesh(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.off")
	require.NoError(t, WriteOFF(path, &models.Mesh{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "OFF\n0 0 0\n", string(data))
}

// parseOFF reads back the header and body of an ASCII OFF file.
func parseOFF(t *testing.T, path string) (vertices [][]float64, faces [][]int) {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())
	require.Equal(t, "OFF", scanner.Text())

	require.True(t, scanner.Scan())
	var vertexCount, faceCount, edgeCount int
	_, err = fmt.Sscanf(scanner.Text(), "%d %d %d", &vertexCount, &faceCount, &edgeCount)
	require.NoError(t, err)
	require.Zero(t, edgeCount, "edge count placeholder must be 0")

	for i := 0; i < vertexCount; i++ {
		require.True(t, scanner.Scan(), "missing vertex line %d", i)
		parts := strings.Fields(scanner.Text())
		require.Len(t, parts, 3)
		var v []float64
		for _, p := range parts {
			var coord float64
			_, err := fmt.Sscanf(p, "%g", &coord)
			require.NoError(t, err)
			v = append(v, coord)
		}
		vertices = append(vertices, v)
	}
	for i := 0; i < faceCount; i++ {
		require.True(t, scanner.Scan(), "missing face line %d", i)
		parts := strings.Fields(scanner.Text())
		require.NotEmpty(t, parts)
		var face []int
		for _, p := range parts {
			var idx int
			_, err := fmt.Sscanf(p, "%d", &idx)
			require.NoError(t, err)
			face = append(face, idx)
		}
		require.Len(t, face, face[0]+1, "face line must start with its vertex count")
		faces = append(faces, face)
	}
	require.False(t, scanner.Scan(), "trailing content after faces")
	return vertices, faces
}
