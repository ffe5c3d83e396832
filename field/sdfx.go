package field

import (
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/soypat/meshpose/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// SDFX exposes the field as a github.com/deadsy/sdfx sdf.SDF3 so the
// sdfx rendering and CAD tooling can consume it. Evaluation clamps query
// points to the grid extent, since the sdf.SDF3 contract has no failure
// path for out of bounds queries.
func (f *Field) SDFX() sdf.SDF3 {
	return sdfxField{f: f}
}

type sdfxField struct {
	f *Field
}

func (s sdfxField) Evaluate(p v3.Vec) float64 {
	q := d3.Clamp(r3.Vec{X: p.X, Y: p.Y, Z: p.Z}, s.f.bb.Min, s.f.bb.Max)
	d, err := s.f.Distance(q)
	if err != nil {
		// Clamped points are always inside the extent.
		panic(err)
	}
	return d
}

func (s sdfxField) BoundingBox() sdf.Box3 {
	return sdf.Box3{
		Min: v3.Vec{X: s.f.bb.Min.X, Y: s.f.bb.Min.Y, Z: s.f.bb.Min.Z},
		Max: v3.Vec{X: s.f.bb.Max.X, Y: s.f.bb.Max.Y, Z: s.f.bb.Max.Z},
	}
}
