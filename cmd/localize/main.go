// Command localize runs the localization pipeline for one query against a
// reference database, with everything supplied as JSON files.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	goutils "go.viam.com/utils"

	"github.com/vitalemonate/hfnet"
	"github.com/vitalemonate/hfnet/camera"
	"github.com/vitalemonate/hfnet/descriptor"
	"github.com/vitalemonate/hfnet/localdb"
)

var logger = golog.NewDevelopmentLogger("localize")

type queryJSON struct {
	CandidateFrames []int64      `json:"candidate_frames"`
	Descriptors     [][]float64  `json:"descriptors"`
	Keypoints       [][2]float64 `json:"keypoints"`
}

func loadQuery(path string, cam *camera.Model) (*hfnet.Query, []int64, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer goutils.UncheckedErrorFunc(f.Close)
	var parsed queryJSON
	if err := json.NewDecoder(f).Decode(&parsed); err != nil {
		return nil, nil, err
	}
	query := &hfnet.Query{
		Descriptors: make([]descriptor.Descriptor, len(parsed.Descriptors)),
		Keypoints:   make([]r2.Point, len(parsed.Keypoints)),
		Camera:      cam,
	}
	for i, d := range parsed.Descriptors {
		query.Descriptors[i] = descriptor.Descriptor(d)
	}
	for i, kp := range parsed.Keypoints {
		query.Keypoints[i] = r2.Point{X: kp[0], Y: kp[1]}
	}
	return query, parsed.CandidateFrames, nil
}

func main() {
	dbPath := flag.String("db", "", "path to the reference database JSON")
	cameraPath := flag.String("camera", "", "path to the query camera model JSON")
	configPath := flag.String("config", "", "path to the pipeline config JSON")
	queryPath := flag.String("query", "", "path to the query JSON")
	parallel := flag.Bool("parallel", false, "evaluate places concurrently")
	flag.Parse()
	if *dbPath == "" || *cameraPath == "" || *configPath == "" || *queryPath == "" {
		logger.Fatal("-db, -camera, -config and -query are all required")
	}

	db, err := localdb.NewDatabaseFromJSONFile(*dbPath)
	if err != nil {
		logger.Fatalw("failed to load database", "error", err)
	}
	cam, err := camera.NewModelFromJSONFile(*cameraPath)
	if err != nil {
		logger.Fatalw("failed to load camera model", "error", err)
	}
	cfg, err := hfnet.LoadPipelineConfig(*configPath)
	if err != nil {
		logger.Fatalw("failed to load pipeline config", "error", err)
	}
	query, candidates, err := loadQuery(*queryPath, cam)
	if err != nil {
		logger.Fatalw("failed to load query", "error", err)
	}
	logger.Infow("loaded inputs",
		"frames", db.NumFrames(), "landmarks", db.NumLandmarks(),
		"candidates", len(candidates), "query_keypoints", len(query.Keypoints))

	run := hfnet.Localize
	if *parallel {
		run = hfnet.LocalizeParallel
	}
	placeResult, err := run(context.Background(), candidates, db, query, cfg, logger)
	if err != nil {
		logger.Fatalw("localization error", "error", err)
	}
	result := placeResult.Result
	if !result.Success {
		logger.Infow("localization failed",
			"place_size", len(placeResult.Place),
			"matches", len(placeResult.Matches),
			"inliers", result.NumInliers)
		return
	}
	logger.Infow("localized",
		"place_size", len(placeResult.Place),
		"matches", len(placeResult.Matches),
		"inliers", result.NumInliers,
		"inlier_ratio", result.InlierRatio)
	logger.Infof("camera pose in world frame:\n%v", result.Pose.Matrix().RawMatrix().Data)
}
