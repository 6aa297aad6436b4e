package hfnet

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func TestLoadPipelineConfig(t *testing.T) {
	contents := `{
		"matching": {"ratio_threshold": 0.75, "expand_observations": true},
		"pose": {
			"reproj_error": 12,
			"min_inliers": 15,
			"min_inlier_ratio": 0.05,
			"additional_min_inliers": 50
		}
	}`
	path := filepath.Join(t.TempDir(), "config.json")
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)

	cfg, err := LoadPipelineConfig(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Matching.RatioThreshold, test.ShouldAlmostEqual, 0.75, 1e-12)
	test.That(t, cfg.Matching.ExpandObservations, test.ShouldBeTrue)
	test.That(t, cfg.Pose.ReprojError, test.ShouldEqual, 12)
	test.That(t, cfg.Pose.AdditionalMinInliers, test.ShouldEqual, 50)

	bad := filepath.Join(t.TempDir(), "bad.json")
	test.That(t, os.WriteFile(bad, []byte(`{"matching": {"ratio_threshold": 2}, "pose": {"reproj_error": 1}}`), 0o600), test.ShouldBeNil)
	_, err = LoadPipelineConfig(bad)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = LoadPipelineConfig(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}
