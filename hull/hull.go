// Package hull computes 3D convex hulls of mesh vertex sets. Hull output
// is a list of maximal planar facets: coplanar hull triangles are merged
// into single polygons with outward unit normals, which is the form the
// stable pose enumerator consumes.
package hull

import (
	"math"

	"github.com/soypat/meshpose"
	"github.com/soypat/meshpose/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// Facet is a maximal planar polygon of the hull boundary.
type Facet struct {
	// Ring is the facet polygon, wound counter-clockwise as seen from
	// outside the hull.
	Ring []r3.Vec
	// Normal is the outward unit normal of the facet plane.
	Normal r3.Vec
	// Area is the planar polygon area, always positive.
	Area float64
}

// Hull is the convex hull of a point set.
type Hull struct {
	facets   []Facet
	vertices []r3.Vec
	centroid r3.Vec
}

// Config parametrizes hull facet merging.
type Config struct {
	// NormalTolerance is the maximum deviation, in 1-cos(angle) terms,
	// between the normals of adjacent coplanar hull triangles for them to
	// be merged into a single facet. Defaults to 1e-12, on the order of a
	// microradian of angular deviation.
	NormalTolerance float64
}

func (cfg *Config) defaults() {
	if cfg.NormalTolerance == 0 {
		cfg.NormalTolerance = 1e-12
	}
}

// DegenerateHullError is returned when the input point set spans fewer
// than 3 dimensions and no solid hull exists.
type DegenerateHullError struct {
	Reason string
}

func (e *DegenerateHullError) Error() string {
	return "degenerate hull: " + e.Reason
}

// New computes the convex hull of the mesh's vertex set with the default
// configuration. Triangle connectivity plays no part in the computation.
func New(m *meshpose.Mesh) (*Hull, error) {
	return NewFromPoints(m.Vertices(), Config{})
}

// NewFromPoints computes the convex hull of an arbitrary point set.
// It fails with *DegenerateHullError if the points do not span 3
// dimensions. The result is deterministic: identical input yields an
// identical facet ordering.
func NewFromPoints(pts []r3.Vec, cfg Config) (*Hull, error) {
	cfg.defaults()
	if len(pts) < 4 {
		return nil, &DegenerateHullError{Reason: "fewer than 4 points"}
	}
	bb := d3.Box{Min: d3.Set(pts).Min(), Max: d3.Set(pts).Max()}
	eps := 1e-10 * math.Max(1, d3.Max(bb.Size()))
	faces, err := incrementalHull(pts, eps)
	if err != nil {
		return nil, err
	}
	h := &Hull{}
	h.collectVertices(pts, faces)
	h.centroid = d3.Set(h.vertices).Mean()
	h.facets = mergeFacets(pts, faces, h.centroid, cfg.NormalTolerance)
	return h, nil
}

// Facets returns the merged hull facets.
func (h *Hull) Facets() []Facet { return h.facets }

// Vertices returns the hull vertex positions in input order.
func (h *Hull) Vertices() []r3.Vec { return h.vertices }

// Centroid returns the mean of the hull vertices. It always lies strictly
// inside the hull and is the reference point for outward orientation.
func (h *Hull) Centroid() r3.Vec { return h.centroid }

func (h *Hull) collectVertices(pts []r3.Vec, faces []hullFace) {
	used := make(map[int]bool)
	for _, f := range faces {
		used[f.v[0]] = true
		used[f.v[1]] = true
		used[f.v[2]] = true
	}
	for i := range pts {
		if used[i] {
			h.vertices = append(h.vertices, pts[i])
		}
	}
}

// hullFace is a triangular face of the working hull with outward normal.
type hullFace struct {
	v [3]int
	n r3.Vec // outward, unit length
	d float64 // plane offset, dot(n, vertex)
}

func newFace(pts []r3.Vec, a, b, c int, interior r3.Vec) hullFace {
	n := r3.Unit(r3.Cross(r3.Sub(pts[b], pts[a]), r3.Sub(pts[c], pts[a])))
	if r3.Dot(n, r3.Sub(pts[a], interior)) < 0 {
		b, c = c, b
		n = r3.Scale(-1, n)
	}
	return hullFace{v: [3]int{a, b, c}, n: n, d: r3.Dot(n, pts[a])}
}

func (f hullFace) sees(p r3.Vec, eps float64) bool {
	return r3.Dot(f.n, p)-f.d > eps
}

// incrementalHull runs a beneath-beyond incremental hull: seed a maximal
// volume-ish tetrahedron from extreme points, then insert every remaining
// point by deleting the faces it sees and stitching new faces along the
// horizon edges. Points on or inside the current hull (within eps) are
// skipped, so coplanar input points never generate overlapping faces.
func incrementalHull(pts []r3.Vec, eps float64) ([]hullFace, error) {
	seed, err := initialTetrahedron(pts, eps)
	if err != nil {
		return nil, err
	}
	interior := d3.Set{pts[seed[0]], pts[seed[1]], pts[seed[2]], pts[seed[3]]}.Mean()
	faces := []hullFace{
		newFace(pts, seed[0], seed[1], seed[2], interior),
		newFace(pts, seed[0], seed[1], seed[3], interior),
		newFace(pts, seed[0], seed[2], seed[3], interior),
		newFace(pts, seed[1], seed[2], seed[3], interior),
	}
	inSeed := map[int]bool{seed[0]: true, seed[1]: true, seed[2]: true, seed[3]: true}
	for i := range pts {
		if inSeed[i] {
			continue
		}
		faces = insertPoint(pts, faces, i, interior, eps)
	}
	return faces, nil
}

func insertPoint(pts []r3.Vec, faces []hullFace, i int, interior r3.Vec, eps float64) []hullFace {
	p := pts[i]
	visible := make(map[[2]int]bool) // directed edges of faces seeing p
	kept := faces[:0:0]
	var seen []hullFace
	for _, f := range faces {
		if f.sees(p, eps) {
			seen = append(seen, f)
			visible[[2]int{f.v[0], f.v[1]}] = true
			visible[[2]int{f.v[1], f.v[2]}] = true
			visible[[2]int{f.v[2], f.v[0]}] = true
		} else {
			kept = append(kept, f)
		}
	}
	if len(seen) == 0 {
		return faces
	}
	// Horizon edges are directed edges of the visible region whose twin
	// belongs to a kept face. New faces span each horizon edge and p.
	// Walking the visible faces in hull order keeps output deterministic.
	for _, f := range seen {
		for e := 0; e < 3; e++ {
			a, b := f.v[e], f.v[(e+1)%3]
			if visible[[2]int{b, a}] {
				continue
			}
			kept = append(kept, newFace(pts, a, b, i, interior))
		}
	}
	return kept
}

// initialTetrahedron picks 4 points spanning 3 dimensions: the most
// distant axis-extreme pair, the point farthest from their line, and the
// point farthest from the resulting plane.
func initialTetrahedron(pts []r3.Vec, eps float64) ([4]int, error) {
	var seed [4]int
	extremes := make([]int, 6) // min/max per axis
	for i, p := range pts {
		if p.X < pts[extremes[0]].X {
			extremes[0] = i
		}
		if p.X > pts[extremes[1]].X {
			extremes[1] = i
		}
		if p.Y < pts[extremes[2]].Y {
			extremes[2] = i
		}
		if p.Y > pts[extremes[3]].Y {
			extremes[3] = i
		}
		if p.Z < pts[extremes[4]].Z {
			extremes[4] = i
		}
		if p.Z > pts[extremes[5]].Z {
			extremes[5] = i
		}
	}
	best := -1.0
	for a := 0; a < len(extremes); a++ {
		for b := a + 1; b < len(extremes); b++ {
			d2 := r3.Norm2(r3.Sub(pts[extremes[a]], pts[extremes[b]]))
			if d2 > best {
				best = d2
				seed[0], seed[1] = extremes[a], extremes[b]
			}
		}
	}
	if best <= eps*eps {
		return seed, &DegenerateHullError{Reason: "all points coincident"}
	}
	line := r3.Sub(pts[seed[1]], pts[seed[0]])
	lineLen := r3.Norm(line)
	best = -1
	for i, p := range pts {
		d := r3.Norm(r3.Cross(line, r3.Sub(p, pts[seed[0]]))) / lineLen
		if d > best {
			best = d
			seed[2] = i
		}
	}
	if best <= eps {
		return seed, &DegenerateHullError{Reason: "points are collinear"}
	}
	n := r3.Unit(r3.Cross(line, r3.Sub(pts[seed[2]], pts[seed[0]])))
	best = -1
	for i, p := range pts {
		d := math.Abs(r3.Dot(n, r3.Sub(p, pts[seed[0]])))
		if d > best {
			best = d
			seed[3] = i
		}
	}
	if best <= eps {
		return seed, &DegenerateHullError{Reason: "points are coplanar"}
	}
	return seed, nil
}
