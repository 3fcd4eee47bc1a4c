package telemetry

// Config holds OpenTelemetry tracing configuration for one worker process.
type Config struct {
	Enabled bool

	// ServiceName and ServiceVersion are reported as resource attributes.
	ServiceName    string
	ServiceVersion string

	// InstanceID distinguishes workers sharing a service name, typically one
	// per cache namespace. Empty omits the attribute.
	InstanceID string

	// Endpoint is the OTLP gRPC collector address (e.g., "localhost:4317")
	Endpoint string

	// Insecure disables TLS towards the collector
	Insecure bool

	// SampleRate is the fraction of root traces kept (0.0 to 1.0). Spans
	// started under a remote parent follow the parent's decision.
	SampleRate float64
}

// DefaultConfig returns tracing disabled with a local collector endpoint.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "dittocache",
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}
