package config

const (
	defaultConfigPath = "~/.config/posebake/config.toml"
	defaultDataDir    = "~/.local/share/posebake"
	defaultStoreFile  = "posebake.db"
	defaultBind       = "127.0.0.1:7420"
)

// Default returns a Config populated with the built-in defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
		},
		Server: Server{
			Bind: defaultBind,
		},
		Detector: Detector{
			ModelComplexity:       1,
			MinConfidence:         0.5,
			MinTrackingConfidence: 0.5,
		},
		Conversion: Conversion{
			SampleFPS:        20,
			Smooth:           true,
			GapPolicy:        "truncate",
			DegeneratePolicy: "emit",
			Seek:             "time",
			ReferenceHeight:  12,
			Cache:            true,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}
