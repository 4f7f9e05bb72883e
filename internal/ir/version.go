package ir

// Version constants for IR schema and recorder.
const (
	// IRVersion is the IR schema version.
	IRVersion = "1"

	// RecorderVersion is the provenant recorder version.
	RecorderVersion = "0.1.0"
)
