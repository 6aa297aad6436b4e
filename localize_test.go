package hfnet

import (
	"context"
	"math"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/vitalemonate/hfnet/camera"
	"github.com/vitalemonate/hfnet/descriptor"
	"github.com/vitalemonate/hfnet/localdb"
	"github.com/vitalemonate/hfnet/matching"
	"github.com/vitalemonate/hfnet/pose"
)

var testCamera = &camera.Model{
	Intrinsics: camera.PinholeIntrinsics{Fx: 500, Fy: 480, Ppx: 320, Ppy: 240},
	RadialK1:   -0.05,
}

// camPoints is a non-coplanar spread of points in front of the query camera.
var camPoints = []r3.Vector{
	{X: -1.2, Y: -0.8, Z: 4.2},
	{X: 1.1, Y: -0.5, Z: 5.0},
	{X: 0.3, Y: 0.9, Z: 4.6},
	{X: -0.7, Y: 1.2, Z: 6.1},
	{X: 1.4, Y: 1.0, Z: 5.5},
	{X: -1.0, Y: 0.2, Z: 7.3},
	{X: 0.8, Y: -1.1, Z: 6.7},
	{X: 0.1, Y: 0.4, Z: 4.9},
}

// rodrigues builds a rotation matrix from an axis-angle vector.
func rodrigues(w r3.Vector) *mat.Dense {
	theta := w.Norm()
	if theta == 0 {
		return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	}
	kx, ky, kz := w.X/theta, w.Y/theta, w.Z/theta
	c, s := math.Cos(theta), math.Sin(theta)
	v := 1 - c
	return mat.NewDense(3, 3, []float64{
		kx*kx*v + c, kx*ky*v - kz*s, kx*kz*v + ky*s,
		kx*ky*v + kz*s, ky*ky*v + c, ky*kz*v - kx*s,
		kx*kz*v - ky*s, ky*kz*v + kx*s, kz*kz*v + c,
	})
}

// unitDescriptor is the canonical descriptor of landmark k: a one-hot vector.
func unitDescriptor(k, dim int) descriptor.Descriptor {
	d := make(descriptor.Descriptor, dim)
	d[k] = 1
	return d
}

// testScene is a database with two covisible reference frames (1 and 2) that
// observe all scene landmarks, one unrelated frame (3), the ground-truth
// world-to-camera transform of the query, and the query itself.
func testScene(t *testing.T) (*localdb.InMemoryDatabase, *pose.Pose, *Query) {
	t.Helper()
	dim := len(camPoints)
	gt := pose.NewPose(rodrigues(r3.Vector{X: 0.05, Y: -0.1, Z: 0.08}), r3.Vector{X: 0.2, Y: -0.1, Z: 0.15})
	gtInv := gt.Inverse()

	db := localdb.NewInMemoryDatabase()
	frame1 := &localdb.Frame{ID: 1}
	frame2 := &localdb.Frame{ID: 2}
	query := &Query{Camera: testCamera}
	for k, camPt := range camPoints {
		lmID := int64(10 + k)
		world := gtInv.Apply(camPt)

		base := unitDescriptor(k, dim)
		perturbed := make(descriptor.Descriptor, dim)
		copy(perturbed, base)
		perturbed[k] = 0.95

		frame1.Descriptors = append(frame1.Descriptors, base)
		frame1.LandmarkIDs = append(frame1.LandmarkIDs, lmID)
		frame1.Keypoints = append(frame1.Keypoints, r2.Point{})
		frame2.Descriptors = append(frame2.Descriptors, perturbed)
		frame2.LandmarkIDs = append(frame2.LandmarkIDs, lmID)
		frame2.Keypoints = append(frame2.Keypoints, r2.Point{})

		test.That(t, db.AddLandmark(&localdb.Landmark{
			ID:           lmID,
			Position:     world,
			FrameIDs:     []int64{1, 2},
			KeypointIdxs: []int{k, k},
		}), test.ShouldBeNil)

		px, ok := testCamera.Project(camPt)
		test.That(t, ok, test.ShouldBeTrue)
		query.Descriptors = append(query.Descriptors, base)
		query.Keypoints = append(query.Keypoints, px)
	}
	test.That(t, db.AddFrame(frame1), test.ShouldBeNil)
	test.That(t, db.AddFrame(frame2), test.ShouldBeNil)

	// frame 3 observes its own landmarks with descriptors far from the query
	frame3 := &localdb.Frame{ID: 3}
	for k := range camPoints {
		lmID := int64(100 + k)
		far := make(descriptor.Descriptor, dim)
		far[k] = 3
		frame3.Descriptors = append(frame3.Descriptors, far)
		frame3.LandmarkIDs = append(frame3.LandmarkIDs, lmID)
		frame3.Keypoints = append(frame3.Keypoints, r2.Point{})
		test.That(t, db.AddLandmark(&localdb.Landmark{
			ID:           lmID,
			Position:     r3.Vector{X: float64(k), Y: 100, Z: 50},
			FrameIDs:     []int64{3},
			KeypointIdxs: []int{k},
		}), test.ShouldBeNil)
	}
	test.That(t, db.AddFrame(frame3), test.ShouldBeNil)

	return db, gt, query
}

func testPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		Matching: &matching.Config{RatioThreshold: 0.6},
		Pose: &pose.Config{
			ReprojError:    3,
			MinInliers:     6,
			MinInlierRatio: 0.5,
			MaxIterations:  300,
			Seed:           7,
		},
	}
}

func checkPoseRecovered(t *testing.T, placeResult *PlaceResult, gt *pose.Pose) {
	t.Helper()
	result := placeResult.Result
	test.That(t, result.Success, test.ShouldBeTrue)
	test.That(t, result.NumInliers, test.ShouldEqual, len(camPoints))
	test.That(t, result.InlierRatio, test.ShouldAlmostEqual, 1.0, 1e-12)

	want := gt.Inverse()
	test.That(t, pose.RotationAngle(result.Pose.R, want.R), test.ShouldAlmostEqual, 0, 1e-3)
	test.That(t, result.Pose.T.Sub(want.T).Norm(), test.ShouldAlmostEqual, 0, 1e-3)
}

func TestLocalize(t *testing.T) {
	logger := golog.NewTestLogger(t)
	db, gt, query := testScene(t)

	placeResult, err := Localize(context.Background(), []int64{1, 2, 3}, db, query, testPipelineConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	// the covisible pair forms the larger place and is tried first
	test.That(t, placeResult.Place, test.ShouldHaveLength, 2)
	test.That(t, placeResult.Matches, test.ShouldHaveLength, len(camPoints))
	checkPoseRecovered(t, placeResult, gt)
}

func TestLocalizeParallel(t *testing.T) {
	logger := golog.NewTestLogger(t)
	db, gt, query := testScene(t)

	placeResult, err := LocalizeParallel(context.Background(), []int64{1, 2, 3}, db, query, testPipelineConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, placeResult.Place, test.ShouldHaveLength, 2)
	checkPoseRecovered(t, placeResult, gt)
}

func TestLocalizeFailure(t *testing.T) {
	// only the unrelated frame is a candidate: nothing matches and the
	// attempt degrades to a structured failure
	logger := golog.NewTestLogger(t)
	db, _, query := testScene(t)

	placeResult, err := Localize(context.Background(), []int64{3}, db, query, testPipelineConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, placeResult.Result.Success, test.ShouldBeFalse)
	test.That(t, placeResult.Result.Pose, test.ShouldBeNil)
	test.That(t, placeResult.Matches, test.ShouldHaveLength, 0)
}

func TestLocalizeNoCandidates(t *testing.T) {
	logger := golog.NewTestLogger(t)
	db, _, query := testScene(t)

	placeResult, err := Localize(context.Background(), nil, db, query, testPipelineConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, placeResult.Result.Success, test.ShouldBeFalse)

	placeResult, err = LocalizeParallel(context.Background(), nil, db, query, testPipelineConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, placeResult.Result.Success, test.ShouldBeFalse)
}

func TestLocalizeCancelled(t *testing.T) {
	logger := golog.NewTestLogger(t)
	db, _, query := testScene(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Localize(ctx, []int64{1, 2, 3}, db, query, testPipelineConfig(), logger)
	test.That(t, err, test.ShouldNotBeNil)
}
