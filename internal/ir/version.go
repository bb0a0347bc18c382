package ir

// Version constants for the request model and compiler.
const (
	// RequestVersion is the compiled request schema version.
	RequestVersion = "1"

	// CompilerVersion is the sqlbridge compiler version.
	CompilerVersion = "0.3.0"
)
