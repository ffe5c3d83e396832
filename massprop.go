package meshpose

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Mass properties via the divergence theorem: every non-degenerate
// triangle forms a signed tetrahedron with the origin, whose volume,
// first moment and second moment are accumulated over the mesh. The sums
// are exact for closed, consistently wound meshes and meaningless for
// open ones, which is what the *DegenerateMeshError checks guard against.

func (m *Mesh) integrate(scale float64) {
	var area, volume float64
	var surf, moment r3.Vec
	var cov [9]float64
	for i := range m.triangles {
		if m.degenerate[i] {
			continue
		}
		t := m.Triangle(i)
		a := t.Area()
		area += a
		surf = r3.Add(surf, r3.Scale(a, t.Centroid()))

		// Signed tetrahedron (origin, t0, t1, t2).
		v := r3.Dot(t[0], r3.Cross(t[1], t[2])) / 6
		volume += v
		moment = r3.Add(moment, r3.Scale(v/4, r3.Add(r3.Add(t[0], t[1]), t[2])))

		// Second moment of the tetrahedron about the origin:
		//  ∫ x xᵀ dV = V/20 (Σᵢ pᵢpᵢᵀ + s sᵀ),  s = Σᵢ pᵢ
		// with the fourth vertex at the origin contributing nothing.
		s := r3.Add(r3.Add(t[0], t[1]), t[2])
		k := v / 20
		accumOuter(&cov, k, t[0])
		accumOuter(&cov, k, t[1])
		accumOuter(&cov, k, t[2])
		accumOuter(&cov, k, s)
	}
	m.area = area
	if area > 0 {
		m.surfCentroid = r3.Scale(1/area, surf)
	}
	m.volume = volume
	m.moment = moment

	var centroid r3.Vec
	for _, v := range m.vertices {
		centroid = r3.Add(centroid, v)
	}
	m.centroid = r3.Scale(1/float64(len(m.vertices)), centroid)

	volTol := epsilon * scale * scale * scale
	m.comOK = math.Abs(volume) > volTol
	if m.comOK {
		// Shift the second moment to the center of mass (parallel axis).
		c := r3.Scale(1/volume, moment)
		accumOuter(&cov, -volume, c)
		m.cov = cov[:]
	}
}

func accumOuter(dst *[9]float64, k float64, p r3.Vec) {
	dst[0] += k * p.X * p.X
	dst[1] += k * p.X * p.Y
	dst[2] += k * p.X * p.Z
	dst[3] += k * p.Y * p.X
	dst[4] += k * p.Y * p.Y
	dst[5] += k * p.Y * p.Z
	dst[6] += k * p.Z * p.X
	dst[7] += k * p.Z * p.Y
	dst[8] += k * p.Z * p.Z
}

// Area returns the total surface area of the mesh, degenerate triangles excluded.
func (m *Mesh) Area() float64 { return m.area }

// Volume returns the signed volume of the mesh. The sign is positive for
// outward wound closed meshes and the value is undefined for open ones.
func (m *Mesh) Volume() float64 { return m.volume }

// Centroid returns the arithmetic mean of the mesh vertices.
func (m *Mesh) Centroid() r3.Vec { return m.centroid }

// SurfaceCentroid returns the area-weighted centroid of the mesh surface.
func (m *Mesh) SurfaceCentroid() r3.Vec { return m.surfCentroid }

// CenterOfMass returns the center of mass of the solid enclosed by the
// mesh assuming uniform density. It fails with *DegenerateMeshError when
// the signed volume is near zero and the quotient moment/volume would be
// meaningless.
func (m *Mesh) CenterOfMass() (r3.Vec, error) {
	if !m.comOK {
		return r3.Vec{}, &DegenerateMeshError{Volume: m.volume}
	}
	return r3.Scale(1/m.volume, m.moment), nil
}

// Covariance returns the second moment of the enclosed solid about its
// center of mass, assuming uniform density. The same degeneracy rules as
// CenterOfMass apply.
func (m *Mesh) Covariance() (*r3.Mat, error) {
	if !m.comOK {
		return nil, &DegenerateMeshError{Volume: m.volume}
	}
	return r3.NewMat(append([]float64{}, m.cov...)), nil
}

// PrincipalAxes returns the principal axes of the enclosed solid ordered
// by descending second moment. The axes are unit length and mutually
// orthogonal; their directions form the canonical frame used to
// standardize mesh orientation.
func (m *Mesh) PrincipalAxes() ([3]r3.Vec, error) {
	if !m.comOK {
		return [3]r3.Vec{}, &DegenerateMeshError{Volume: m.volume}
	}
	sym := mat.NewSymDense(3, append([]float64{}, m.cov...))
	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		return [3]r3.Vec{}, &DegenerateMeshError{Volume: m.volume}
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	// EigenSym sorts eigenvalues in ascending order; flip to descending.
	var axes [3]r3.Vec
	for i := 0; i < 3; i++ {
		axes[i] = r3.Vec{X: vecs.At(0, 2-i), Y: vecs.At(1, 2-i), Z: vecs.At(2, 2-i)}
	}
	return axes, nil
}
