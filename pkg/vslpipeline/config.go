package vslpipeline

import "github.com/vsl-go/vslcore/pkg/config"

// OptionsFromConfig maps the loaded pipeline configuration onto the
// Options the engine actually runs with.
func OptionsFromConfig(cfg config.PipelineConfig) Options {
	return Options{
		StreamBufferSize:  int(cfg.StreamBufferSize),
		MaxRecordSlots:    cfg.MaxRecordSlots,
		MaxEpochDiff:      cfg.MaxEpochDiff,
		EvictFactor:       cfg.EvictFactor,
		StatEpochInterval: cfg.StatEpochInterval,
	}
}
