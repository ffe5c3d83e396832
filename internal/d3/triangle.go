package d3

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Closest returns the closest point on triangle t to the argument point p.
func Closest(t r3.Triangle, p r3.Vec) r3.Vec {
	if pt, inside := closestInside(t, p); inside {
		return pt
	}
	// The closest point lies on one of the triangle edges.
	closest := ClosestOnSegment(t[0], t[1], p)
	best := r3.Norm2(r3.Sub(p, closest))

	pt := ClosestOnSegment(t[1], t[2], p)
	if d2 := r3.Norm2(r3.Sub(p, pt)); d2 < best {
		closest = pt
		best = d2
	}
	pt = ClosestOnSegment(t[2], t[0], p)
	if d2 := r3.Norm2(r3.Sub(p, pt)); d2 < best {
		return pt
	}
	return closest
}

// closestInside analytically minimizes the distance from p to the plane
// spanned by the triangle. Parametrize points on the triangle as
//
//	Q = t0 + u*e0 + v*e1,  e0 = t1-t0, e1 = t2-t0
//
// and solve for u, v. The projection is only valid when it falls within
// the triangle's barycentric bounds.
func closestInside(t r3.Triangle, p r3.Vec) (r3.Vec, bool) {
	const eps = 1e-12
	e0 := r3.Sub(t[1], t[0])
	e1 := r3.Sub(t[2], t[0])
	a := r3.Norm2(e0)
	b := r3.Dot(e0, e1)
	c := r3.Norm2(e1)
	d := r3.Sub(p, t[0])
	det := a*c - b*b
	if math.Abs(det) < eps {
		// Degenerate triangle with collinear edges.
		return r3.Vec{}, false
	}
	u := (c*r3.Dot(e0, d) - b*r3.Dot(e1, d)) / det
	v := (-b*r3.Dot(e0, d) + a*r3.Dot(e1, d)) / det
	inside := u >= -eps && v >= -eps && u+v <= 1+eps
	return r3.Add(t[0], r3.Add(r3.Scale(u, e0), r3.Scale(v, e1))), inside
}

// ClosestOnSegment returns the closest point on segment [a,b] to point p.
func ClosestOnSegment(a, b, p r3.Vec) r3.Vec {
	ab := r3.Sub(b, a)
	l2 := r3.Norm2(ab)
	if l2 == 0 {
		return a
	}
	s := r3.Dot(r3.Sub(p, a), ab) / l2
	if s <= 0 {
		return a
	}
	if s >= 1 {
		return b
	}
	return r3.Add(a, r3.Scale(s, ab))
}

// RayHits reports whether the ray origin+s*dir, s>0 crosses triangle t
// using the Möller–Trumbore intersection test. dir need not be unit length.
func RayHits(t r3.Triangle, origin, dir r3.Vec) bool {
	const eps = 1e-12
	e0 := r3.Sub(t[1], t[0])
	e1 := r3.Sub(t[2], t[0])
	h := r3.Cross(dir, e1)
	det := r3.Dot(e0, h)
	if math.Abs(det) < eps {
		// Ray parallel to triangle plane.
		return false
	}
	inv := 1 / det
	s := r3.Sub(origin, t[0])
	u := inv * r3.Dot(s, h)
	if u < 0 || u > 1 {
		return false
	}
	q := r3.Cross(s, e0)
	v := inv * r3.Dot(dir, q)
	if v < 0 || u+v > 1 {
		return false
	}
	return inv*r3.Dot(e1, q) > eps
}
