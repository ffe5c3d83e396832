// Package meshpose analyzes rigid 3D triangular meshes. It computes the
// stable orientations a mesh settles into when dropped on a flat support
// together with their probabilities (package pose, on top of package hull)
// and voxelized signed distance fields for inside/outside and proximity
// queries (package field). This package holds the shared mesh model and
// its derived mass properties.
package meshpose

import (
	"fmt"

	"github.com/soypat/meshpose/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// epsilon is the relative tolerance deciding triangle and volume degeneracy.
	epsilon = 1e-12
)

// Mesh is an immutable triangle mesh. Vertices are unique by index, not by
// coordinate; duplicate positions are permitted. Triangles are triples of
// vertex indices wound consistently so their normals point out of the solid.
//
// All derived properties are computed at construction so a Mesh may be
// read concurrently without synchronization.
type Mesh struct {
	vertices  []r3.Vec
	triangles [][3]int
	// degenerate flags triangles excluded from surface and volume integrals.
	degenerate []bool
	warnings   []string

	bb           d3.Box
	area         float64
	volume       float64
	centroid     r3.Vec
	surfCentroid r3.Vec
	moment       r3.Vec    // volume-weighted first moment, not yet divided by volume.
	cov          []float64 // row-major second moment about the center of mass.
	comOK        bool
}

// NewMesh constructs a Mesh from raw vertex positions and triangle index
// triples. The arrays are copied; callers may reuse them afterwards.
// Construction fails with *InvalidMeshError if a coordinate is not finite
// or a triangle references an out of range vertex. Triangles with repeated
// indices or near-zero area are tolerated: they are excluded from derived
// surface/volume properties and noted in Warnings.
func NewMesh(vertices []r3.Vec, triangles [][3]int) (*Mesh, error) {
	if len(vertices) == 0 {
		return nil, &InvalidMeshError{Vertex: -1, Triangle: -1, Reason: "no vertices"}
	}
	m := &Mesh{
		vertices:   append([]r3.Vec{}, vertices...),
		triangles:  make([][3]int, len(triangles)),
		degenerate: make([]bool, len(triangles)),
	}
	for i, v := range m.vertices {
		if !d3.IsFinite(v) {
			return nil, &InvalidMeshError{Vertex: i, Triangle: -1, Reason: "coordinate is NaN or Inf"}
		}
	}
	bb := d3.Box{Min: m.vertices[0], Max: m.vertices[0]}
	for _, v := range m.vertices {
		bb = bb.Include(v)
	}
	m.bb = bb
	scale := d3.Max(bb.Size())
	if scale == 0 {
		scale = 1
	}
	areaTol := epsilon * scale * scale
	for i, t := range triangles {
		for _, vi := range t {
			if vi < 0 || vi >= len(m.vertices) {
				return nil, &InvalidMeshError{Vertex: -1, Triangle: i,
					Reason: fmt.Sprintf("vertex index %d out of range [0,%d)", vi, len(m.vertices))}
			}
		}
		m.triangles[i] = t
		switch {
		case t[0] == t[1] || t[1] == t[2] || t[2] == t[0]:
			m.degenerate[i] = true
			m.warnings = append(m.warnings, fmt.Sprintf("triangle %d: repeated vertex index, excluded from mass properties", i))
		case m.Triangle(i).Area() <= areaTol:
			m.degenerate[i] = true
			m.warnings = append(m.warnings, fmt.Sprintf("triangle %d: near-zero area, excluded from mass properties", i))
		}
	}
	m.integrate(scale)
	return m, nil
}

// NumVertices returns the number of mesh vertices.
func (m *Mesh) NumVertices() int { return len(m.vertices) }

// NumTriangles returns the number of mesh triangles, degenerate ones included.
func (m *Mesh) NumTriangles() int { return len(m.triangles) }

// Vertex returns the position of the i-th vertex.
func (m *Mesh) Vertex(i int) r3.Vec { return m.vertices[i] }

// Vertices returns a copy of the mesh vertex positions.
func (m *Mesh) Vertices() []r3.Vec {
	return append([]r3.Vec{}, m.vertices...)
}

// TriangleIndices returns the vertex indices of the i-th triangle.
func (m *Mesh) TriangleIndices(i int) [3]int { return m.triangles[i] }

// Triangle returns the geometry of the i-th triangle.
func (m *Mesh) Triangle(i int) r3.Triangle {
	t := m.triangles[i]
	return r3.Triangle{m.vertices[t[0]], m.vertices[t[1]], m.vertices[t[2]]}
}

// IsDegenerate reports whether the i-th triangle was excluded from the
// mesh's surface and volume integrals.
func (m *Mesh) IsDegenerate(i int) bool { return m.degenerate[i] }

// Bounds returns the axis aligned bounding box of the mesh vertices.
func (m *Mesh) Bounds() r3.Box { return r3.Box(m.bb) }

// Warnings returns the degeneracies recorded during construction.
func (m *Mesh) Warnings() []string {
	return append([]string{}, m.warnings...)
}
