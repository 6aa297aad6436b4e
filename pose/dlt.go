package pose

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// minPnPPoints is the sample size of the direct linear transform solve: a
// 3x4 projection matrix has 11 degrees of freedom and each correspondence
// contributes 2 equations.
const minPnPPoints = 6

var errDegenerateSample = errors.New("degenerate point configuration for DLT solve")

// solvePnPDLT computes the world-to-camera transform from n >= 6
// correspondences between normalized image coordinates and 3D world points.
// The projection matrix is recovered as the null vector of the stacked
// constraint system and decomposed into a proper rotation and translation.
func solvePnPDLT(pts2D []r2.Point, pts3D []r3.Vector) (*Pose, error) {
	n := len(pts2D)
	if n < minPnPPoints {
		return nil, errors.Errorf("need at least %d correspondences, got %d", minPnPPoints, n)
	}
	a := mat.NewDense(2*n, 12, nil)
	for i := 0; i < n; i++ {
		x, y := pts2D[i].X, pts2D[i].Y
		wx, wy, wz := pts3D[i].X, pts3D[i].Y, pts3D[i].Z
		a.SetRow(2*i, []float64{
			wx, wy, wz, 1, 0, 0, 0, 0, -x * wx, -x * wy, -x * wz, -x,
		})
		a.SetRow(2*i+1, []float64{
			0, 0, 0, 0, wx, wy, wz, 1, -y * wx, -y * wy, -y * wz, -y,
		})
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return nil, errors.New("failed to factorize DLT system")
	}
	vals := svd.Values(nil)
	// A nullspace of dimension > 1 means the points do not constrain the
	// projection matrix (e.g. near-coplanar sample).
	if vals[10] < 1e-9*vals[0] {
		return nil, errDegenerateSample
	}
	var v mat.Dense
	svd.VTo(&v)
	p := v.ColView(11)

	// Left 3x3 block of the projection matrix equals the rotation up to a
	// signed scale; recover both from its SVD.
	a3 := mat.NewDense(3, 3, []float64{
		p.AtVec(0), p.AtVec(1), p.AtVec(2),
		p.AtVec(4), p.AtVec(5), p.AtVec(6),
		p.AtVec(8), p.AtVec(9), p.AtVec(10),
	})
	var svd3 mat.SVD
	if ok := svd3.Factorize(a3, mat.SVDFull); !ok {
		return nil, errors.New("failed to factorize rotation block")
	}
	s := svd3.Values(nil)
	if s[2] < 1e-9*s[0] {
		return nil, errDegenerateSample
	}
	var u, vr mat.Dense
	svd3.UTo(&u)
	svd3.VTo(&vr)
	r := mat.NewDense(3, 3, nil)
	r.Mul(&u, vr.T())

	sign := 1.0
	if mat.Det(r) < 0 {
		sign = -1.0
		r.Scale(-1, r)
	}
	scale := sign * (s[0] + s[1] + s[2]) / 3
	if scale == 0 || math.IsNaN(scale) {
		return nil, errDegenerateSample
	}
	t := r3.Vector{
		X: p.AtVec(3) / scale,
		Y: p.AtVec(7) / scale,
		Z: p.AtVec(11) / scale,
	}
	return NewPose(r, t), nil
}
