package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Client: ClientConfig{
			Profile:     "uni2",
			Application: "recog",
		},
		Transport: TransportLoopback,
		Loopback: LoopbackConfig{
			FrameIntervalMS:  10,
			ChannelAddStatus: ChannelAddSuccess,
			RecognizeState:   RecognizeInProgress,
			ResultText:       "",
			MRCPVersion:      2,
		},
		Log:               LogConfig{Level: "info"},
		ShutdownTimeoutMS: 2000,
		Debug:             DebugConfig{},
	}
}
