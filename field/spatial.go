package field

import (
	"math"

	"github.com/soypat/meshpose/internal/d3"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// kd-tree plumbing for nearest-triangle candidate lookups. Triangles are
// keyed and measured by centroid so the tree's pruning bound matches its
// metric; the exact point-to-triangle minimum is resolved by the builder
// over every candidate whose centroid falls within reach of the best
// triangle distance found so far.

type kdTriangle struct {
	C r3.Vec // centroid, the kd key and metric.
	T r3.Triangle
}

func (t *kdTriangle) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(*kdTriangle)
	switch d {
	case 0:
		return t.C.X - q.C.X
	case 1:
		return t.C.Y - q.C.Y
	case 2:
		return t.C.Z - q.C.Z
	}
	panic("unreachable")
}

func (t *kdTriangle) Dims() int { return 3 }

func (t *kdTriangle) Distance(c kdtree.Comparable) float64 {
	q := c.(*kdTriangle)
	return r3.Norm2(r3.Sub(t.C, q.C))
}

// triangleDistance returns the distance from p to the closest point on t.
func triangleDistance(t r3.Triangle, p r3.Vec) float64 {
	return r3.Norm(r3.Sub(p, d3.Closest(t, p)))
}

type kdMesh struct {
	triangles []kdTriangle
}

// Index returns the ith element of the list of points.
func (m *kdMesh) Index(i int) kdtree.Comparable { return &m.triangles[i] }

// Len returns the length of the list.
func (m *kdMesh) Len() int { return len(m.triangles) }

// Pivot partitions the list based on the dimension specified.
func (m *kdMesh) Pivot(d kdtree.Dim) int {
	p := kdPlane{dim: int(d), triangles: m.triangles}
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}

// Slice returns a slice of the list using zero-based half
// open indexing equivalent to built-in slice indexing.
func (m *kdMesh) Slice(start, end int) kdtree.Interface {
	sliced := *m
	sliced.triangles = sliced.triangles[start:end]
	return &sliced
}

// Bounds implements the kdtree.Bounder interface over triangle centroids.
func (m *kdMesh) Bounds() *kdtree.Bounding {
	min := kdTriangle{C: r3.Vec{X: math.MaxFloat64, Y: math.MaxFloat64, Z: math.MaxFloat64}}
	max := kdTriangle{C: r3.Vec{X: -math.MaxFloat64, Y: -math.MaxFloat64, Z: -math.MaxFloat64}}
	for _, t := range m.triangles {
		min.C = d3.MinElem(min.C, t.C)
		max.C = d3.MaxElem(max.C, t.C)
	}
	return &kdtree.Bounding{
		Min: &min,
		Max: &max,
	}
}

type kdPlane struct {
	dim       int
	triangles []kdTriangle
}

func (p kdPlane) Less(i, j int) bool {
	ti := &p.triangles[i]
	tj := &p.triangles[j]
	return ti.Compare(tj, kdtree.Dim(p.dim)) < 0
}
func (p kdPlane) Swap(i, j int) {
	p.triangles[i], p.triangles[j] = p.triangles[j], p.triangles[i]
}
func (p kdPlane) Len() int {
	return len(p.triangles)
}
func (p kdPlane) Slice(start, end int) kdtree.SortSlicer {
	p.triangles = p.triangles[start:end]
	return p
}
