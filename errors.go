package meshpose

import "fmt"

// InvalidMeshError is returned by NewMesh when the vertex or triangle
// arrays are malformed: a non-finite coordinate or an out of range
// triangle index.
type InvalidMeshError struct {
	// Vertex is the offending vertex index, -1 when not applicable.
	Vertex int
	// Triangle is the offending triangle index, -1 when not applicable.
	Triangle int
	Reason   string
}

func (e *InvalidMeshError) Error() string {
	switch {
	case e.Triangle >= 0:
		return fmt.Sprintf("invalid mesh: triangle %d: %s", e.Triangle, e.Reason)
	case e.Vertex >= 0:
		return fmt.Sprintf("invalid mesh: vertex %d: %s", e.Vertex, e.Reason)
	}
	return "invalid mesh: " + e.Reason
}

// DegenerateMeshError is returned when the signed volume of a mesh is too
// close to zero for volume-weighted properties to be meaningful. This is
// the case for open and inverted meshes.
type DegenerateMeshError struct {
	// Volume is the signed volume that was computed for the mesh.
	Volume float64
}

func (e *DegenerateMeshError) Error() string {
	return fmt.Sprintf("degenerate mesh: signed volume %g too close to zero", e.Volume)
}
