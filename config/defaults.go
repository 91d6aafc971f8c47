package config

// Default returns the built-in configuration: a 19-electrode 10-20
// montage sampled at 250 Hz with a 4-second analysis window, the five
// standard EEG bands, five motor-imagery classes, and a stub text
// generation backend.
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			AllowedOrigins:  []string{"*"},
			IngestRateLimit: 50,
			IngestBurst:     20,
		},
		NATS: NATSConfig{
			Enabled: false,
			URL:     "nats://localhost:4222",
			Subject: "neuro.classification",
			Name:    "llamaneuro",
		},
		Processor: ProcessorConfig{
			SamplingRate:   250,
			BufferDuration: 4.0,
			UpdateInterval: 0.1,
			Electrodes: []string{
				"Fp1", "Fp2", "F7", "F3", "Fz", "F4", "F8",
				"T3", "C3", "Cz", "C4", "T4",
				"T5", "P3", "Pz", "P4", "T6",
				"O1", "O2",
			},
			FrequencyBands: map[string][2]float64{
				"delta": {0.5, 4},
				"theta": {4, 8},
				"alpha": {8, 13},
				"beta":  {13, 30},
				"gamma": {30, 100},
			},
			Classes:             []string{"left_hand", "right_hand", "feet", "tongue", "rest"},
			Simulated:           true,
			UseConnectivity:     false,
			ConnectivityMethod:  "correlation",
			EncoderHiddenDim:    64,
			EncoderHeads:        4,
			EncoderLayers:       2,
			ClassifierHiddenDim: 64,
			IngestQueueSize:     64,
			StopTimeoutSeconds:  2.0,
			Seed:                42,
		},
		Generator: GeneratorConfig{
			Backend:          "stub",
			Model:            "gpt-4o-mini",
			APIKeyEnv:        "OPENAI_API_KEY",
			MaxTokens:        256,
			Temperature:      0.7,
			TopP:             0.9,
			FrequencyPenalty: 0.0,
			GuidanceStrength: 0.5,
			SemanticMapping: map[string][]string{
				"left_hand":  {"move", "change", "shift", "select"},
				"right_hand": {"create", "add", "increase", "new"},
				"feet":       {"stop", "pause", "halt", "reduce"},
				"tongue":     {"confirm", "accept", "approve", "yes"},
				"rest":       {"neutral", "wait", "standby", "idle"},
			},
			HistoryLimit: 50,
			QueueSize:    16,
			Seed:         42,
		},
	}
}
