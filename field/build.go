package field

import (
	"math"
	"runtime"

	"github.com/edaniels/golog"
	"github.com/soypat/meshpose"
	"github.com/soypat/meshpose/internal/d3"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// Config parametrizes field construction.
type Config struct {
	// Resolution is the voxel edge length. Must be positive.
	Resolution float64
	// Padding is extra margin added around the mesh bounding box on every
	// side. Defaults to one voxel so the zero level set never touches the
	// grid boundary.
	Padding float64
	// Workers bounds the number of goroutines filling the grid.
	// Defaults to GOMAXPROCS.
	Workers int
	// Logger, when set, reports grid sizing at debug level.
	Logger golog.Logger
}

// rayDir is the fixed parity-test ray direction. Its components are
// mutually irrational so the ray cannot run parallel to axis-aligned
// geometry or graze shared mesh edges for entire voxel rows.
var rayDir = r3.Unit(r3.Vec{X: math.Sqrt2, Y: math.Pi / 2, Z: math.E / 3})

// New builds a signed distance field for the mesh. Per-voxel unsigned
// distance comes from a kd-tree nearest-triangle query; the sign from a
// ray-parity winding test, odd crossings meaning inside. Degenerate mesh
// triangles take part in neither.
//
// Construction fails with *InvalidResolutionError for a non-positive
// resolution and *EmptyMeshError for a mesh with no usable triangles.
func New(m *meshpose.Mesh, cfg Config) (*Field, error) {
	if cfg.Resolution <= 0 {
		return nil, &InvalidResolutionError{Resolution: cfg.Resolution}
	}
	if cfg.Padding == 0 {
		cfg.Padding = cfg.Resolution
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	tris := make([]r3.Triangle, 0, m.NumTriangles())
	for i := 0; i < m.NumTriangles(); i++ {
		if !m.IsDegenerate(i) {
			tris = append(tris, m.Triangle(i))
		}
	}
	if len(tris) == 0 {
		return nil, &EmptyMeshError{}
	}

	f := newGrid(d3.Box(m.Bounds()), cfg.Resolution, cfg.Padding)
	if cfg.Logger != nil {
		cfg.Logger.Debugf("field grid %dx%dx%d at resolution %g over %d triangles",
			f.nx, f.ny, f.nz, f.res, len(tris))
	}

	data := &kdMesh{triangles: make([]kdTriangle, len(tris))}
	// reach bounds how far any point of a triangle strays from its
	// centroid; it converts centroid distances into triangle distance
	// bounds during the nearest lookup.
	var reach float64
	for i, t := range tris {
		c := t.Centroid()
		data.triangles[i] = kdTriangle{C: c, T: t}
		for _, v := range t {
			if r := r3.Norm(r3.Sub(v, c)); r > reach {
				reach = r
			}
		}
	}
	tree := kdtree.New(data, true)

	// Every voxel depends only on the read-only triangle set and its own
	// center, so the grid is filled slab by slab in parallel.
	var group errgroup.Group
	group.SetLimit(cfg.Workers)
	for k := 0; k < f.nz; k++ {
		k := k
		group.Go(func() error {
			f.fillSlab(k, tree, tris, reach)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return f, nil
}

func newGrid(bb d3.Box, res, padding float64) *Field {
	bb = bb.Enlarge(d3.Elem(2 * padding))
	dims := d3.CeilElem(r3.Scale(1/res, bb.Size()))
	f := &Field{
		nx:  max(1, int(dims.X)),
		ny:  max(1, int(dims.Y)),
		nz:  max(1, int(dims.Z)),
		res: res,
	}
	// The grid extent is quantized to whole voxels and so may slightly
	// exceed the padded bounding box.
	f.bb = d3.Box{
		Min: bb.Min,
		Max: r3.Add(bb.Min, r3.Scale(res, r3.Vec{X: float64(f.nx), Y: float64(f.ny), Z: float64(f.nz)})),
	}
	f.vals = make([]float32, f.nx*f.ny*f.nz)
	f.grid2world = d3.ComposeTransform(f.bb.Min, d3.Elem(res), r3.Rotation{})
	f.world2grid = f.grid2world.Inv()
	return f
}

func (f *Field) fillSlab(k int, tree *kdtree.Tree, tris []r3.Triangle, reach float64) {
	for j := 0; j < f.ny; j++ {
		for i := 0; i < f.nx; i++ {
			p := f.CellCenter(i, j, k)
			d := nearestDistance(tree, p, reach)
			if inside(tris, p) {
				d = -d
			}
			f.vals[f.idx(i, j, k)] = float32(d)
		}
	}
}

// nearestDistance returns the distance from p to the closest triangle in
// the tree. The tree prunes on centroid distance, which understates or
// overstates the triangle distance by at most reach, so the candidate
// triangle nearest by centroid is not necessarily the closest one: the
// exact minimum is taken over every triangle whose centroid lies within
// the candidate's triangle distance plus reach. The result depends only
// on the triangle set, not on the tree's shape.
func nearestDistance(tree *kdtree.Tree, p r3.Vec, reach float64) float64 {
	q := &kdTriangle{C: p}
	candidate, _ := tree.Nearest(q)
	best := triangleDistance(candidate.(*kdTriangle).T, p)
	bound := best + reach
	keep := kdtree.NewDistKeeper(bound * bound)
	tree.NearestSet(keep, q)
	for _, c := range keep.Heap {
		if c.Comparable == nil {
			continue
		}
		if d := triangleDistance(c.Comparable.(*kdTriangle).T, p); d < best {
			best = d
		}
	}
	return best
}

// inside runs the parity test: a point is interior when a ray from it
// crosses the mesh surface an odd number of times.
func inside(tris []r3.Triangle, p r3.Vec) bool {
	crossings := 0
	for _, t := range tris {
		if d3.RayHits(t, p, rayDir) {
			crossings++
		}
	}
	return crossings%2 == 1
}
