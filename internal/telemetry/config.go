package telemetry

// Config holds configuration for the tracer
type Config struct {
	// ServiceName is reported as service.name
	ServiceName string

	// ServiceVersion is reported as service.version
	ServiceVersion string

	// Enabled determines whether tracing is enabled.
	// When false, a noop tracer is used
	Enabled bool

	// Endpoint is the OTLP/HTTP collector host:port.
	// If empty, spans are recorded but not exported
	Endpoint string

	// Insecure sends spans over plain HTTP
	Insecure bool

	// SampleRate is the fraction of traces to sample (0.0 to 1.0)
	SampleRate float64
}

// DefaultConfig returns tracing disabled, the CLI default
func DefaultConfig() Config {
	return Config{
		ServiceName:    "mapx",
		ServiceVersion: "dev",
		SampleRate:     1.0,
	}
}
