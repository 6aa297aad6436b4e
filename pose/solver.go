package pose

import (
	"context"
	"math/rand"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/vitalemonate/hfnet/camera"
)

// RansacConfig parameterizes the robust estimation loop.
type RansacConfig struct {
	// MaxIterations caps the number of random hypotheses.
	MaxIterations int
	// ReprojError is the pixel threshold for inlier classification.
	ReprojError float64
}

// Solver is the robust PnP capability the estimator delegates to.
// RobustEstimate returns whether a consensus was found, the world-to-camera
// transform and the inlier index set. Refine re-solves the pose from the
// given correspondences seeded from an initial estimate.
type Solver interface {
	RobustEstimate(
		ctx context.Context,
		pts2D []r2.Point,
		pts3D []r3.Vector,
		intrinsics *camera.PinholeIntrinsics,
		cfg *RansacConfig,
	) (bool, *Pose, []int, error)
	Refine(
		pts2D []r2.Point,
		pts3D []r3.Vector,
		intrinsics *camera.PinholeIntrinsics,
		initial *Pose,
	) (*Pose, error)
}

// DLTSolver solves PnP with RANSAC over 6-point direct linear transform
// hypotheses and refines with a Gauss-Newton iteration. It expects
// undistorted pixel coordinates. Not safe for concurrent use; each goroutine
// should own its solver.
type DLTSolver struct {
	rnd    *rand.Rand
	logger golog.Logger
}

// NewDLTSolver returns a solver with a seeded random source, so repeated runs
// on the same input produce the same result.
func NewDLTSolver(seed int64, logger golog.Logger) *DLTSolver {
	return &DLTSolver{rnd: rand.New(rand.NewSource(seed)), logger: logger}
}

// ctxCheckInterval is how many RANSAC iterations run between context checks.
const ctxCheckInterval = 64

// RobustEstimate runs the RANSAC loop. It reports no consensus (rather than
// an error) when there are too few correspondences or no hypothesis reaches
// a minimal consensus.
func (s *DLTSolver) RobustEstimate(
	ctx context.Context,
	pts2D []r2.Point,
	pts3D []r3.Vector,
	intrinsics *camera.PinholeIntrinsics,
	cfg *RansacConfig,
) (bool, *Pose, []int, error) {
	n := len(pts2D)
	if n < minPnPPoints {
		return false, nil, nil, nil
	}
	normalized := make([]r2.Point, n)
	for i, px := range pts2D {
		normalized[i] = intrinsics.PixelToNormalized(px)
	}

	var bestPose *Pose
	var bestInliers []int
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	sample2D := make([]r2.Point, minPnPPoints)
	sample3D := make([]r3.Vector, minPnPPoints)

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		if iter%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return false, nil, nil, err
			}
		}
		// partial Fisher-Yates shuffle for a minimal sample
		for i := 0; i < minPnPPoints; i++ {
			j := i + s.rnd.Intn(n-i)
			indices[i], indices[j] = indices[j], indices[i]
		}
		for i := 0; i < minPnPPoints; i++ {
			sample2D[i] = normalized[indices[i]]
			sample3D[i] = pts3D[indices[i]]
		}
		hyp, err := solvePnPDLT(sample2D, sample3D)
		if err != nil {
			continue
		}
		// reject hypotheses that put sample points behind the camera
		behind := false
		for i := 0; i < minPnPPoints; i++ {
			if hyp.Apply(sample3D[i]).Z <= 0 {
				behind = true
				break
			}
		}
		if behind {
			continue
		}
		inliers := classifyInliers(pts2D, pts3D, intrinsics, hyp, cfg.ReprojError)
		if len(inliers) > len(bestInliers) {
			bestPose = hyp
			bestInliers = inliers
		}
	}

	if len(bestInliers) < minPnPPoints {
		return false, nil, nil, nil
	}
	s.logger.Debugw("ransac consensus", "inliers", len(bestInliers), "correspondences", n)
	return true, bestPose, bestInliers, nil
}

// classifyInliers returns the indices of correspondences whose reprojection
// through pose lands within threshold pixels of the observation.
func classifyInliers(
	pts2D []r2.Point,
	pts3D []r3.Vector,
	intrinsics *camera.PinholeIntrinsics,
	pose *Pose,
	threshold float64,
) []int {
	inliers := []int{}
	for i := range pts2D {
		projected, ok := intrinsics.PointToPixel(pose.Apply(pts3D[i]))
		if !ok {
			continue
		}
		if projected.Sub(pts2D[i]).Norm() <= threshold {
			inliers = append(inliers, i)
		}
	}
	return inliers
}
