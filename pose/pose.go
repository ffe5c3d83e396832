// Package pose enumerates the stable resting orientations of a closed
// mesh dropped on a flat support plane. A hull facet yields a stable pose
// when the mesh's center of mass projects inside the facet's footprint;
// facets inducing the same orientation are merged and each surviving pose
// is weighted by the aggregate facet area, a proxy for its settling basin
// of attraction.
package pose

import (
	"fmt"
	"math"
	"sort"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/soypat/meshpose"
	"github.com/soypat/meshpose/hull"
	"github.com/soypat/meshpose/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// Pose is one stable resting orientation.
type Pose struct {
	// Rotation maps mesh coordinates to table coordinates: it takes the
	// supporting facet's outward normal to -z so the facet faces the
	// support plane. Always a proper rotation.
	Rotation r3.Rotation
	// Probability of the mesh settling into this pose, in (0, 1]. The
	// probabilities of all poses of one mesh sum to 1.
	Probability float64
	// Facets are the indices of the hull facets merged into this pose,
	// in ascending order.
	Facets []int
	// Contact is a mesh-frame vertex of the supporting facet that rests
	// on the table.
	Contact r3.Vec

	table d3.Transform
}

// Apply maps a mesh-frame point to table coordinates: the pose rotation
// followed by the lift that puts the supporting facet on the z=0 plane.
func (p Pose) Apply(v r3.Vec) r3.Vec {
	return p.table.Transform(v)
}

// Config parametrizes stable pose enumeration. The zero value is ready to use.
type Config struct {
	// AngleTolerance is the angular distance in radians under which two
	// facet orientations are considered the same resting pose. Defaults
	// to 2 degrees, enough to collapse triangulation noise.
	AngleTolerance float64
	// InsetTolerance is the relative distance beyond a facet edge at
	// which the projected center of mass still counts as supported.
	// Scaled by the facet extent. Defaults to 1e-9.
	InsetTolerance float64
	// Hull configures the convex hull build when Enumerate computes one.
	Hull hull.Config
	// Logger, when set, reports discarded facets and merges at debug level.
	Logger golog.Logger
}

func (cfg *Config) defaults() {
	if cfg.AngleTolerance == 0 {
		cfg.AngleTolerance = 2 * math.Pi / 180
	}
	if cfg.InsetTolerance == 0 {
		cfg.InsetTolerance = 1e-9
	}
}

// NoStablePoseError is returned when no hull facet passes the stability
// test. It does not occur for valid closed meshes but malformed centers
// of mass can produce it.
type NoStablePoseError struct {
	// Facets is the number of hull facets that were tested.
	Facets int
}

func (e *NoStablePoseError) Error() string {
	return fmt.Sprintf("no stable pose among %d hull facets", e.Facets)
}

// Enumerate computes the stable poses of a mesh. It builds the convex
// hull internally; use EnumerateHull to reuse a precomputed one.
// Poses are sorted by descending probability with ties broken by facet
// discovery order, so output is deterministic.
func Enumerate(m *meshpose.Mesh, cfg Config) ([]Pose, error) {
	com, err := m.CenterOfMass()
	if err != nil {
		return nil, errors.Wrap(err, "stable pose enumeration")
	}
	h, err := hull.NewFromPoints(m.Vertices(), cfg.Hull)
	if err != nil {
		return nil, errors.Wrap(err, "stable pose enumeration")
	}
	return EnumerateHull(h, com, cfg)
}

// EnumerateHull computes the stable poses of a solid with the given
// convex hull and center of mass.
func EnumerateHull(h *hull.Hull, com r3.Vec, cfg Config) ([]Pose, error) {
	cfg.defaults()
	facets := h.Facets()
	var stable []int
	for i, f := range facets {
		if supports(f, com, cfg.InsetTolerance) {
			stable = append(stable, i)
		} else if cfg.Logger != nil {
			cfg.Logger.Debugf("facet %d unstable: center of mass projects outside support polygon", i)
		}
	}
	if len(stable) == 0 {
		return nil, &NoStablePoseError{Facets: len(facets)}
	}

	groups := mergeByNormal(facets, stable, 1-math.Cos(cfg.AngleTolerance))
	var total float64
	for _, g := range groups {
		for _, fi := range g {
			total += facets[fi].Area
		}
	}

	poses := make([]Pose, 0, len(groups))
	for _, g := range groups {
		poses = append(poses, newPose(facets, g, total, cfg.Logger))
	}
	sort.SliceStable(poses, func(i, j int) bool {
		return poses[i].Probability > poses[j].Probability
	})
	return poses, nil
}

// supports reports whether the center of mass projected along the facet
// normal lands inside the facet ring. Points within tol of an edge count
// as supported (tied cases settle rather than topple).
func supports(f hull.Facet, com r3.Vec, insetTol float64) bool {
	q := r3.Sub(com, r3.Scale(r3.Dot(f.Normal, r3.Sub(com, f.Ring[0])), f.Normal))
	tol := insetTol * math.Sqrt(f.Area)
	for i := range f.Ring {
		a := f.Ring[i]
		b := f.Ring[(i+1)%len(f.Ring)]
		e := r3.Sub(b, a)
		// Signed distance of q from edge (a,b); positive inside for a
		// ring wound counter-clockwise about the outward normal.
		d := r3.Dot(r3.Cross(e, r3.Sub(q, a)), f.Normal) / r3.Norm(e)
		if d < -tol {
			return false
		}
	}
	return true
}

// mergeByNormal clusters stable facets whose outward normals agree within
// tol (in 1-cos terms) using a union-find, keeping first-encountered
// order for both groups and members.
func mergeByNormal(facets []hull.Facet, stable []int, tol float64) [][]int {
	parent := make([]int, len(stable))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for i := 0; i < len(stable); i++ {
		for j := i + 1; j < len(stable); j++ {
			if 1-r3.Dot(facets[stable[i]].Normal, facets[stable[j]].Normal) < tol {
				ri, rj := find(i), find(j)
				if ri > rj {
					ri, rj = rj, ri
				}
				if ri != rj {
					parent[rj] = ri
				}
			}
		}
	}
	groupOf := make(map[int]int)
	var groups [][]int
	for i, fi := range stable {
		root := find(i)
		gi, ok := groupOf[root]
		if !ok {
			gi = len(groups)
			groupOf[root] = gi
			groups = append(groups, nil)
		}
		groups[gi] = append(groups[gi], fi)
	}
	return groups
}

func newPose(facets []hull.Facet, group []int, totalArea float64, logger golog.Logger) Pose {
	var area float64
	var normal r3.Vec
	largest := group[0]
	for _, fi := range group {
		f := facets[fi]
		area += f.Area
		normal = r3.Add(normal, r3.Scale(f.Area, f.Normal))
		if f.Area > facets[largest].Area {
			largest = fi
		}
	}
	normal = r3.Unit(normal)
	if logger != nil && len(group) > 1 {
		logger.Debugf("merged %d facets into one pose, aggregate area %g", len(group), area)
	}
	rot := rotationTo(normal, r3.Vec{Z: -1})
	contact := facets[largest].Ring[0]
	lift := -rot.Rotate(contact).Z
	return Pose{
		Rotation:    rot,
		Probability: area / totalArea,
		Facets:      group,
		Contact:     contact,
		table:       d3.ComposeTransform(r3.Vec{Z: lift}, d3.Elem(1), rot),
	}
}

// rotationTo returns the proper rotation taking unit vector a to unit
// vector b about the axis perpendicular to both. The antiparallel case
// rotates half a turn about an arbitrary perpendicular axis.
func rotationTo(a, b r3.Vec) r3.Rotation {
	const tol = 1e-12
	c := r3.Dot(a, b)
	switch {
	case c >= 1-tol:
		return r3.NewRotation(0, r3.Vec{Z: 1})
	case c <= -1+tol:
		return r3.NewRotation(math.Pi, perpendicular(a))
	}
	axis := r3.Cross(a, b)
	return r3.NewRotation(math.Acos(c), axis)
}

// perpendicular returns a unit vector orthogonal to v.
func perpendicular(v r3.Vec) r3.Vec {
	axis := r3.Vec{X: 1}
	if math.Abs(v.X) > math.Abs(v.Y) {
		axis = r3.Vec{Y: 1}
	}
	return r3.Unit(r3.Cross(v, axis))
}
