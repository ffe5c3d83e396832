package hull

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// Coplanar facet merging. Adjacent hull triangles whose normals agree
// within the configured tolerance are clustered with a union-find over
// shared edges, and each cluster's vertices are reassembled into a single
// convex polygon ring.

func mergeFacets(pts []r3.Vec, faces []hullFace, centroid r3.Vec, normalTol float64) []Facet {
	uf := newUnionFind(len(faces))
	edgeFace := make(map[[2]int]int)
	for i, f := range faces {
		for e := 0; e < 3; e++ {
			a, b := f.v[e], f.v[(e+1)%3]
			if a > b {
				a, b = b, a
			}
			if j, ok := edgeFace[[2]int{a, b}]; ok {
				if 1-r3.Dot(faces[i].n, faces[j].n) < normalTol {
					uf.union(i, j)
				}
			} else {
				edgeFace[[2]int{a, b}] = i
			}
		}
	}

	groups := make(map[int][]int)
	var order []int
	for i := range faces {
		root := uf.find(i)
		if _, seen := groups[root]; !seen {
			order = append(order, root)
		}
		groups[root] = append(groups[root], i)
	}

	facets := make([]Facet, 0, len(order))
	for _, root := range order {
		f := buildFacet(pts, faces, groups[root], centroid)
		if f.Area > 0 {
			facets = append(facets, f)
		}
	}
	return facets
}

// buildFacet flattens a cluster of coplanar triangles into one polygon.
// The cluster's union is convex because it is a patch of a convex hull
// boundary, so sorting its vertices by angle about the patch centroid
// recovers the ring.
func buildFacet(pts []r3.Vec, faces []hullFace, group []int, hullCentroid r3.Vec) Facet {
	var normal r3.Vec
	vset := make(map[int]bool)
	for _, fi := range group {
		f := faces[fi]
		t := r3.Triangle{pts[f.v[0]], pts[f.v[1]], pts[f.v[2]]}
		normal = r3.Add(normal, r3.Scale(t.Area(), f.n))
		vset[f.v[0]] = true
		vset[f.v[1]] = true
		vset[f.v[2]] = true
	}
	normal = r3.Unit(normal)

	idx := make([]int, 0, len(vset))
	for vi := range vset {
		idx = append(idx, vi)
	}
	sort.Ints(idx)
	ring := make([]r3.Vec, len(idx))
	var fc r3.Vec
	for i, vi := range idx {
		ring[i] = pts[vi]
		fc = r3.Add(fc, pts[vi])
	}
	fc = r3.Scale(1/float64(len(ring)), fc)

	// Orient outward against the hull centroid before ordering the ring.
	if r3.Dot(normal, r3.Sub(fc, hullCentroid)) < 0 {
		normal = r3.Scale(-1, normal)
	}
	u, v := planeBasis(normal)
	sort.SliceStable(ring, func(i, j int) bool {
		return planeAngle(ring[i], fc, u, v) < planeAngle(ring[j], fc, u, v)
	})
	rotateToMin(ring)

	// Shoelace area in the facet plane. The ring is counter-clockwise
	// about the outward normal, so the signed area is positive.
	var area float64
	for i := range ring {
		a := ring[i]
		b := ring[(i+1)%len(ring)]
		au, av := r3.Dot(r3.Sub(a, fc), u), r3.Dot(r3.Sub(a, fc), v)
		bu, bv := r3.Dot(r3.Sub(b, fc), u), r3.Dot(r3.Sub(b, fc), v)
		area += au*bv - bu*av
	}
	area /= 2
	return Facet{Ring: ring, Normal: normal, Area: area}
}

// planeBasis returns unit vectors u, v such that (u, v, n) is a
// right-handed frame: points sorted by increasing angle in the (u, v)
// plane wind counter-clockwise as seen from the +n side.
func planeBasis(n r3.Vec) (u, v r3.Vec) {
	axis := r3.Vec{X: 1}
	if math.Abs(n.X) > math.Abs(n.Y) {
		axis = r3.Vec{Y: 1}
	}
	u = r3.Unit(r3.Cross(n, axis))
	v = r3.Cross(n, u)
	return u, v
}

func planeAngle(p, origin, u, v r3.Vec) float64 {
	d := r3.Sub(p, origin)
	return math.Atan2(r3.Dot(d, v), r3.Dot(d, u))
}

// rotateToMin rotates the ring in place so it starts at its
// lexicographically smallest vertex, keeping facet output deterministic
// regardless of the angular sort's starting quadrant.
func rotateToMin(ring []r3.Vec) {
	min := 0
	for i := 1; i < len(ring); i++ {
		if vecLess(ring[i], ring[min]) {
			min = i
		}
	}
	rotated := append(append([]r3.Vec{}, ring[min:]...), ring[:min]...)
	copy(ring, rotated)
}

func vecLess(a, b r3.Vec) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(i int) int {
	for uf.parent[i] != i {
		uf.parent[i] = uf.parent[uf.parent[i]]
		i = uf.parent[i]
	}
	return i
}

// union merges the sets of i and j keeping the smaller root, so group
// identity follows the first face encountered.
func (uf *unionFind) union(i, j int) {
	ri, rj := uf.find(i), uf.find(j)
	if ri == rj {
		return
	}
	if rj < ri {
		ri, rj = rj, ri
	}
	uf.parent[rj] = ri
}
