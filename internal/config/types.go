package config

// Deploy types. Private deployments only allow loopback and whitelisted
// clients to create resources.
const (
	DeployPrivate = "Private"
	DeployPublic  = "Public"
)

// Config is the on-disk service configuration.
type Config struct {
	Server struct {
		Name                  string   `yaml:"name"`
		Version               string   `yaml:"version"`
		Port                  string   `yaml:"port"`
		DeployType            string   `yaml:"deployType"`
		EnableAccessWhitelist bool     `yaml:"enableAccessWhitelist"`
		AccessWhitelist       []string `yaml:"accessWhitelist"`
		// CreateRateLimit is the number of create calls allowed per client
		// IP per minute.
		CreateRateLimit int   `yaml:"createRateLimit"`
		MaxUploadSize   int64 `yaml:"maxUploadSize"`
		// AutoTLS serves HTTPS on :443 with ACME certificates for Host.
		AutoTLS   bool   `yaml:"autoTLS"`
		Host      string `yaml:"host"`
		AcmeEmail string `yaml:"acmeEmail"`
	} `yaml:"server"`

	Storage struct {
		RootPath             string `yaml:"rootPath"`
		ConfigPath           string `yaml:"configPath"`
		DataPath             string `yaml:"dataPath"`
		TmpPath              string `yaml:"tmpPath"`
		SharePath            string `yaml:"sharePath"`
		IndexPath            string `yaml:"indexPath"`
		MaxResource          int    `yaml:"maxResource"`
		AutoCleanOldResource bool   `yaml:"autoCleanOldResource"`
		StagingTTL           string `yaml:"stagingTTL"`
	} `yaml:"storage"`

	// FirstTime is set when the config file did not exist and was written
	// with defaults.
	FirstTime bool `yaml:"-"`
}
