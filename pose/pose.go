// Package pose estimates the 6-DoF pose of the query camera from 2D-3D
// correspondences with a RANSAC perspective-n-point solve followed by
// non-linear refinement.
package pose

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Pose is a rigid transform: rotation R (3x3) followed by translation T.
type Pose struct {
	R *mat.Dense
	T r3.Vector
}

// NewPose returns a pose from a rotation matrix and a translation.
func NewPose(r *mat.Dense, t r3.Vector) *Pose {
	return &Pose{R: r, T: t}
}

// NewIdentityPose returns the identity transform.
func NewIdentityPose() *Pose {
	return &Pose{R: eye3(), T: r3.Vector{}}
}

// Apply transforms a point: R*v + T.
func (p *Pose) Apply(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: p.R.At(0, 0)*v.X + p.R.At(0, 1)*v.Y + p.R.At(0, 2)*v.Z + p.T.X,
		Y: p.R.At(1, 0)*v.X + p.R.At(1, 1)*v.Y + p.R.At(1, 2)*v.Z + p.T.Y,
		Z: p.R.At(2, 0)*v.X + p.R.At(2, 1)*v.Y + p.R.At(2, 2)*v.Z + p.T.Z,
	}
}

// Inverse returns the inverse rigid transform: R^T, -R^T * T.
func (p *Pose) Inverse() *Pose {
	rt := mat.DenseCopyOf(p.R.T())
	t := r3.Vector{
		X: -(rt.At(0, 0)*p.T.X + rt.At(0, 1)*p.T.Y + rt.At(0, 2)*p.T.Z),
		Y: -(rt.At(1, 0)*p.T.X + rt.At(1, 1)*p.T.Y + rt.At(1, 2)*p.T.Z),
		Z: -(rt.At(2, 0)*p.T.X + rt.At(2, 1)*p.T.Y + rt.At(2, 2)*p.T.Z),
	}
	return &Pose{R: rt, T: t}
}

// Matrix returns the pose as a 4x4 homogeneous transform.
func (p *Pose) Matrix() *mat.Dense {
	out := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.Set(i, j, p.R.At(i, j))
		}
	}
	out.Set(0, 3, p.T.X)
	out.Set(1, 3, p.T.Y)
	out.Set(2, 3, p.T.Z)
	out.Set(3, 3, 1)
	return out
}

// RotationAngle returns the angle in radians of the relative rotation between
// a and b. The angle comes from atan2 of the skew part against the trace;
// acos of the trace alone amplifies rounding near zero into ~1e-8 angles.
func RotationAngle(a, b *mat.Dense) float64 {
	var rel mat.Dense
	rel.Mul(a.T(), b)
	sx := rel.At(2, 1) - rel.At(1, 2)
	sy := rel.At(0, 2) - rel.At(2, 0)
	sz := rel.At(1, 0) - rel.At(0, 1)
	s := math.Sqrt(sx*sx+sy*sy+sz*sz) / 2
	c := (rel.At(0, 0) + rel.At(1, 1) + rel.At(2, 2) - 1) / 2
	return math.Atan2(s, c)
}

func eye3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

// skew returns the cross-product matrix of v.
func skew(v r3.Vector) *mat.Dense {
	out := mat.NewDense(3, 3, nil)
	out.Set(0, 1, -v.Z)
	out.Set(0, 2, v.Y)
	out.Set(1, 0, v.Z)
	out.Set(1, 2, -v.X)
	out.Set(2, 0, -v.Y)
	out.Set(2, 1, v.X)
	return out
}

// expSO3 returns the rotation matrix for the axis-angle vector w via the
// Rodrigues formula.
func expSO3(w r3.Vector) *mat.Dense {
	theta := w.Norm()
	k := skew(w)
	out := eye3()
	if theta < 1e-12 {
		// first-order approximation near identity
		var sum mat.Dense
		sum.Add(out, k)
		return mat.DenseCopyOf(&sum)
	}
	var k2 mat.Dense
	k2.Mul(k, k)
	var term1, term2, sum mat.Dense
	term1.Scale(math.Sin(theta)/theta, k)
	term2.Scale((1-math.Cos(theta))/(theta*theta), &k2)
	sum.Add(out, &term1)
	sum.Add(&sum, &term2)
	return mat.DenseCopyOf(&sum)
}
