package config

// TracingConfig holds OTLP tracing configuration.
//
// Spans are exported over OTLP/HTTP to a local collector.
// See internal/observability for the exporter setup.
type TracingConfig struct {
	// Enabled turns span export on (default: false)
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// Endpoint is the OTLP/HTTP collector endpoint (default: localhost:4318)
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`
	// ServiceName is the reported service name (default: lexbase)
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	// Environment is the deployment environment tag (default: dev)
	Environment string `mapstructure:"environment" json:"environment"`
}
