package config

// CLIConfig is the configuration for docsnap-cli.
type CLIConfig struct {
	// Server is the admin API address, host:port or a full URL.
	Server string `yaml:"server" json:"server"`
	// Token is the admin bearer token.
	Token string `yaml:"token,omitempty" json:"token,omitempty"`

	// CAFile adds a PEM bundle to the system roots for https servers.
	CAFile   string `yaml:"ca_file,omitempty" json:"ca_file,omitempty"`
	Insecure bool   `yaml:"insecure,omitempty" json:"insecure"`

	Output string `yaml:"output" json:"output"` // table, json, yaml
	Wide   bool   `yaml:"wide,omitempty" json:"wide"`
}

const (
	DefaultServer = "127.0.0.1:5090"
	DefaultOutput = "table"
)

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		Server: DefaultServer,
		Output: DefaultOutput,
	}
}
