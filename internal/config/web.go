package config

// WebConfig contains the configuration for the bridge API server.
type WebConfig struct {
	// RequestLogging enables logging of all HTTP requests.
	RequestLogging bool `yaml:"request_logging"`
	// ListeningAddress is the address and port for the API server.
	ListeningAddress string `yaml:"listening_address"`
	// ApiTokenHash is the bcrypt hash of the token the host platform uses to
	// authenticate against the bridge API.
	ApiTokenHash string `yaml:"api_token_hash"`
	// MetricsListeningAddress is the address and port for the Prometheus
	// metrics endpoint. Empty disables the metrics server.
	MetricsListeningAddress string `yaml:"metrics_listening_address"`
	// CertFile is the path to the TLS certificate file.
	CertFile string `yaml:"cert_file"`
	// KeyFile is the path to the TLS certificate key file.
	KeyFile string `yaml:"key_file"`
}
