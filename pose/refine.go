package pose

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/vitalemonate/hfnet/camera"
)

// ErrRefinementDiverged reports that the non-linear refinement failed to
// converge. Since refinement only runs on validated inliers, this indicates a
// broken input contract or solver defect, not an expected outcome.
var ErrRefinementDiverged = errors.New("pose refinement failed to converge")

const (
	refineMaxIterations = 100
	refineStepTolerance = 1e-12
)

// Refine minimizes the reprojection error over the given correspondences
// with a Gauss-Newton iteration on the 6-DoF pose, seeded from initial. The
// rotation update is a left-multiplied so(3) increment.
func (s *DLTSolver) Refine(
	pts2D []r2.Point,
	pts3D []r3.Vector,
	intrinsics *camera.PinholeIntrinsics,
	initial *Pose,
) (*Pose, error) {
	if len(pts2D) != len(pts3D) {
		return nil, errors.Errorf("have %d 2D points but %d 3D points", len(pts2D), len(pts3D))
	}
	if len(pts2D) < minPnPPoints {
		return nil, errors.Errorf("need at least %d correspondences to refine, got %d", minPnPPoints, len(pts2D))
	}
	current := NewPose(mat.DenseCopyOf(initial.R), initial.T)

	for iter := 0; iter < refineMaxIterations; iter++ {
		jtj := mat.NewDense(6, 6, nil)
		jtr := mat.NewVecDense(6, nil)
		for i := range pts3D {
			p := current.Apply(pts3D[i])
			if p.Z <= 0 {
				return nil, errors.Wrapf(ErrRefinementDiverged, "inlier %d moved behind the camera", i)
			}
			fx, fy := intrinsics.Fx, intrinsics.Fy
			invZ := 1 / p.Z
			// residual of the pinhole projection
			ru := (p.X*invZ)*fx + intrinsics.Ppx - pts2D[i].X
			rv := (p.Y*invZ)*fy + intrinsics.Ppy - pts2D[i].Y

			// Jacobian of the projection wrt the camera-frame point
			ju := []float64{fx * invZ, 0, -fx * p.X * invZ * invZ}
			jv := []float64{0, fy * invZ, -fy * p.Y * invZ * invZ}

			// chain through the pose: d p / d t = I,
			// d p / d w = -[p - t]x for a left-multiplied increment
			q := p.Sub(current.T)
			rows := [2][6]float64{}
			for k, jp := range [][]float64{ju, jv} {
				// rotation block: jp * (-skew(q))
				rows[k][0] = jp[2]*q.Y - jp[1]*q.Z
				rows[k][1] = jp[0]*q.Z - jp[2]*q.X
				rows[k][2] = jp[1]*q.X - jp[0]*q.Y
				// translation block
				rows[k][3] = jp[0]
				rows[k][4] = jp[1]
				rows[k][5] = jp[2]
			}
			res := [2]float64{ru, rv}
			for k := 0; k < 2; k++ {
				for a := 0; a < 6; a++ {
					jtr.SetVec(a, jtr.AtVec(a)+rows[k][a]*res[k])
					for b := 0; b < 6; b++ {
						jtj.Set(a, b, jtj.At(a, b)+rows[k][a]*rows[k][b])
					}
				}
			}
		}

		delta := mat.NewVecDense(6, nil)
		if err := delta.SolveVec(jtj, jtr); err != nil {
			return nil, errors.Wrap(ErrRefinementDiverged, "normal equations are singular")
		}
		w := r3.Vector{X: -delta.AtVec(0), Y: -delta.AtVec(1), Z: -delta.AtVec(2)}
		dt := r3.Vector{X: -delta.AtVec(3), Y: -delta.AtVec(4), Z: -delta.AtVec(5)}

		var rotated mat.Dense
		rotated.Mul(expSO3(w), current.R)
		current = NewPose(mat.DenseCopyOf(&rotated), current.T.Add(dt))

		step := math.Sqrt(w.Norm2() + dt.Norm2())
		if step < refineStepTolerance {
			return current, nil
		}
	}
	return nil, ErrRefinementDiverged
}
