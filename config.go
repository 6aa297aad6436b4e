package hfnet

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/vitalemonate/hfnet/matching"
	"github.com/vitalemonate/hfnet/pose"
)

// PipelineConfig bundles the configuration of the matching and pose
// estimation stages.
type PipelineConfig struct {
	Matching *matching.Config `json:"matching"`
	Pose     *pose.Config     `json:"pose"`
}

// CheckValid checks if the fields for PipelineConfig have valid inputs.
func (cfg *PipelineConfig) CheckValid() error {
	if cfg == nil {
		return errors.New("pipeline config is nil")
	}
	if err := cfg.Matching.CheckValid(); err != nil {
		return err
	}
	return cfg.Pose.CheckValid()
}

// LoadPipelineConfig loads a pipeline configuration from a json file.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	var config PipelineConfig
	//nolint:gosec
	configFile, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer goutils.UncheckedErrorFunc(configFile.Close)
	if err := json.NewDecoder(configFile).Decode(&config); err != nil {
		return nil, err
	}
	if err := config.CheckValid(); err != nil {
		return nil, err
	}
	return &config, nil
}
