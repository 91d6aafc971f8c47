package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.Validate())

	assert.Equal(t, 250, cfg.Processor.SamplingRate)
	assert.Equal(t, 1000, cfg.Processor.WindowSamples())
	assert.Len(t, cfg.Processor.Electrodes, 19)
	assert.Len(t, cfg.Processor.Classes, 5)
	assert.Len(t, cfg.Processor.FrequencyBands, 5)
	assert.Equal(t, "stub", cfg.Generator.Backend)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.json")
	assert.Error(t, err)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"server": {"host": "127.0.0.1", "port": 9000, "allowed_origins": ["*"], "ingest_rate_limit": 10, "ingest_burst": 5},
		"processor": {
			"sampling_rate": 128,
			"buffer_duration": 2.0,
			"update_interval": 0.05,
			"electrodes": ["C3", "C4"],
			"frequency_bands": {"alpha": [8, 13]},
			"classes": ["left_hand", "right_hand"],
			"simulated": true,
			"encoder_hidden_dim": 32,
			"encoder_heads": 4,
			"encoder_layers": 1,
			"classifier_hidden_dim": 16,
			"ingest_queue_size": 8,
			"stop_timeout_seconds": 1.0
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 128, cfg.Processor.SamplingRate)
	assert.Equal(t, 256, cfg.Processor.WindowSamples())
	assert.Equal(t, []string{"C3", "C4"}, cfg.Processor.Electrodes)
	// Generator section untouched by the file keeps defaults.
	assert.Equal(t, "stub", cfg.Generator.Backend)
	assert.Equal(t, 50, cfg.Generator.HistoryLimit)
}

func TestLoadMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Processor.SamplingRate = 0
	cfg.Processor.BufferDuration = -1
	cfg.Processor.Classes = nil
	cfg.Generator.Temperature = 5

	errs := cfg.Validate()
	fields := make([]string, len(errs))
	for i, fe := range errs {
		fields[i] = fe.Field
	}

	assert.Contains(t, fields, "processor.sampling_rate")
	assert.Contains(t, fields, "processor.buffer_duration")
	assert.Contains(t, fields, "processor.classes")
	assert.Contains(t, fields, "generator.temperature")
	assert.Len(t, errs, 4, "one error per offending field")
}

func TestValidateBandRanges(t *testing.T) {
	cfg := Default()
	cfg.Processor.FrequencyBands = map[string][2]float64{
		"ok":       {8, 13},
		"inverted": {20, 10},
		"negative": {-1, 4},
	}

	errs := cfg.Processor.Validate()
	require.Len(t, errs, 2)
	for _, fe := range errs {
		assert.Contains(t, fe.Field, "processor.frequency_bands.")
	}
}

func TestValidateDuplicateElectrodes(t *testing.T) {
	cfg := Default()
	cfg.Processor.Electrodes = []string{"C3", "C3"}

	errs := cfg.Processor.Validate()
	require.Len(t, errs, 1)
	assert.Equal(t, "processor.electrodes", errs[0].Field)
}

func TestValidateEncoderHeadDivisibility(t *testing.T) {
	cfg := Default()
	cfg.Processor.EncoderHiddenDim = 30
	cfg.Processor.EncoderHeads = 4

	errs := cfg.Processor.Validate()
	require.Len(t, errs, 1)
	assert.Equal(t, "processor.encoder_heads", errs[0].Field)
}

func TestNATSValidationOnlyWhenEnabled(t *testing.T) {
	cfg := Default()
	cfg.NATS.Enabled = false
	cfg.NATS.URL = ""
	assert.Empty(t, cfg.NATS.Validate())

	cfg.NATS.Enabled = true
	errs := cfg.NATS.Validate()
	require.Len(t, errs, 1)
	assert.Equal(t, "nats.url", errs[0].Field)
}

func TestSafeConfig(t *testing.T) {
	sc := NewSafeConfig(Default())

	got := sc.Get()
	got.Processor.SamplingRate = 999
	// Mutating the copy must not affect the stored config.
	assert.Equal(t, 250, sc.Get().Processor.SamplingRate)

	updated := Default()
	updated.Processor.SamplingRate = 500
	require.NoError(t, sc.Update(updated))
	assert.Equal(t, 500, sc.Get().Processor.SamplingRate)

	bad := Default()
	bad.Processor.SamplingRate = -1
	assert.Error(t, sc.Update(bad))
	assert.Error(t, sc.Update(nil))
}

func TestClone(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.Processor.Electrodes[0] = "XX"
	assert.Equal(t, "Fp1", cfg.Processor.Electrodes[0])
}
