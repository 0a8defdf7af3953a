package config

import "path/filepath"

// Config is the root configuration structure for the application.
type Config struct {
	LogLevel string        `yaml:"log_level" mapstructure:"log_level"`
	LogFile  string        `yaml:"log_file" mapstructure:"log_file"`
	Project  ProjectConfig `yaml:"project" mapstructure:"project"`
	Export   ExportConfig  `yaml:"export" mapstructure:"export"`
	Server   ServerConfig  `yaml:"server" mapstructure:"server"`
	Import   ImportConfig  `yaml:"import" mapstructure:"import"`
	Metrics  MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// ProjectConfig locates the host project and its asset registry.
type ProjectConfig struct {
	Dir             string `yaml:"dir" mapstructure:"dir"`
	ContentDir      string `yaml:"content_dir" mapstructure:"content_dir"`
	Namespace       string `yaml:"namespace" mapstructure:"namespace"`
	VendorNamespace string `yaml:"vendor_namespace" mapstructure:"vendor_namespace"`
	RegistryFile    string `yaml:"registry_file" mapstructure:"registry_file"`
	PreviewsDir     string `yaml:"previews_dir" mapstructure:"previews_dir"`
}

// ResolvedContentDir returns the content directory, defaulting to
// <project dir>/Content.
func (p ProjectConfig) ResolvedContentDir() string {
	if p.ContentDir != "" {
		return expandHome(p.ContentDir)
	}
	return filepath.Join(expandHome(p.Dir), "Content")
}

// ResolvedRegistryFile returns the registry file, defaulting to
// <project dir>/assets.yaml.
func (p ProjectConfig) ResolvedRegistryFile() string {
	if p.RegistryFile != "" {
		return expandHome(p.RegistryFile)
	}
	return filepath.Join(expandHome(p.Dir), "assets.yaml")
}

// ExportConfig controls where archives and the export ledger are written.
type ExportConfig struct {
	Root       string `yaml:"root" mapstructure:"root"`
	StagingDir string `yaml:"staging_dir" mapstructure:"staging_dir"`
	LedgerFile string `yaml:"ledger_file" mapstructure:"ledger_file"`
}

// ServerConfig holds catalog server and import listener configuration.
type ServerConfig struct {
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	ImportListenPort int    `yaml:"import_listen_port" mapstructure:"import_listen_port"`
	ImportListenBind string `yaml:"import_listen_bind" mapstructure:"import_listen_bind"`
	NotifyRate       int    `yaml:"notify_rate" mapstructure:"notify_rate"`           // notifications per second
	RequestTimeout   int    `yaml:"request_timeout" mapstructure:"request_timeout"`   // seconds
	UploadTimeout    int    `yaml:"upload_timeout" mapstructure:"upload_timeout"`     // seconds
	DownloadTimeout  int    `yaml:"download_timeout" mapstructure:"download_timeout"` // seconds
	ShutdownTimeout  int    `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"` // seconds
	PIDFile          string `yaml:"pid_file" mapstructure:"pid_file"`
}

// ImportConfig controls the inbox watcher.
type ImportConfig struct {
	InboxDir   string `yaml:"inbox_dir" mapstructure:"inbox_dir"`
	DebounceMS int    `yaml:"debounce_ms" mapstructure:"debounce_ms"`
	Mode       string `yaml:"mode" mapstructure:"mode"`
}

// MetricsConfig holds metrics collection configuration.
type MetricsConfig struct {
	CollectionInterval int `yaml:"collection_interval" mapstructure:"collection_interval"`
}

// ProjectPath resolves p against the project directory. Absolute paths and
// paths starting with ~ are returned expanded but otherwise unchanged.
func (c *Config) ProjectPath(p string) string {
	if p == "" {
		return ""
	}
	p = expandHome(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(expandHome(c.Project.Dir), p)
}
