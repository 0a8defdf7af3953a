package config

import "github.com/spf13/viper"

// Default configuration values.
const (
	DefaultLogLevel = "info"
	DefaultLogFile  = "~/.config/snapshot/snapshot.log"

	DefaultProjectDir      = "."
	DefaultNamespace       = "/Game/"
	DefaultVendorNamespace = "byHans1"
	DefaultPreviewsDir     = "Saved/AssetSnapshot/Previews"

	DefaultExportRoot       = "Saved/AssetSnapshot/Exports"
	DefaultExportStagingDir = "Saved/AssetSnapshotImports"
	DefaultLedgerFile       = "~/.config/snapshot/ledger.db"

	DefaultBaseURL          = "127.0.0.1:9090"
	DefaultImportListenPort = 8008
	DefaultImportListenBind = "127.0.0.1"
	DefaultNotifyRate       = 10
	DefaultRequestTimeout   = 5
	DefaultUploadTimeout    = 10
	DefaultDownloadTimeout  = 60
	DefaultShutdownTimeout  = 30
	DefaultPIDFile          = "~/.config/snapshot/listener.pid"

	DefaultInboxDir   = "Saved/AssetSnapshot/Inbox"
	DefaultDebounceMS = 1000
	DefaultImportMode = "skip"

	DefaultMetricsInterval = 15
)

// setDefaults registers all default configuration values with v.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_file", DefaultLogFile)

	v.SetDefault("project.dir", DefaultProjectDir)
	v.SetDefault("project.content_dir", "")
	v.SetDefault("project.namespace", DefaultNamespace)
	v.SetDefault("project.vendor_namespace", DefaultVendorNamespace)
	v.SetDefault("project.registry_file", "")
	v.SetDefault("project.previews_dir", DefaultPreviewsDir)

	v.SetDefault("export.root", DefaultExportRoot)
	v.SetDefault("export.staging_dir", DefaultExportStagingDir)
	v.SetDefault("export.ledger_file", DefaultLedgerFile)

	v.SetDefault("server.base_url", DefaultBaseURL)
	v.SetDefault("server.import_listen_port", DefaultImportListenPort)
	v.SetDefault("server.import_listen_bind", DefaultImportListenBind)
	v.SetDefault("server.notify_rate", DefaultNotifyRate)
	v.SetDefault("server.request_timeout", DefaultRequestTimeout)
	v.SetDefault("server.upload_timeout", DefaultUploadTimeout)
	v.SetDefault("server.download_timeout", DefaultDownloadTimeout)
	v.SetDefault("server.shutdown_timeout", DefaultShutdownTimeout)
	v.SetDefault("server.pid_file", DefaultPIDFile)

	v.SetDefault("import.inbox_dir", DefaultInboxDir)
	v.SetDefault("import.debounce_ms", DefaultDebounceMS)
	v.SetDefault("import.mode", DefaultImportMode)

	v.SetDefault("metrics.collection_interval", DefaultMetricsInterval)
}

// NewDefaultConfig returns a Config populated with default values.
func NewDefaultConfig() Config {
	return Config{
		LogLevel: DefaultLogLevel,
		LogFile:  DefaultLogFile,
		Project: ProjectConfig{
			Dir:             DefaultProjectDir,
			Namespace:       DefaultNamespace,
			VendorNamespace: DefaultVendorNamespace,
			PreviewsDir:     DefaultPreviewsDir,
		},
		Export: ExportConfig{
			Root:       DefaultExportRoot,
			StagingDir: DefaultExportStagingDir,
			LedgerFile: DefaultLedgerFile,
		},
		Server: ServerConfig{
			BaseURL:          DefaultBaseURL,
			ImportListenPort: DefaultImportListenPort,
			ImportListenBind: DefaultImportListenBind,
			NotifyRate:       DefaultNotifyRate,
			RequestTimeout:   DefaultRequestTimeout,
			UploadTimeout:    DefaultUploadTimeout,
			DownloadTimeout:  DefaultDownloadTimeout,
			ShutdownTimeout:  DefaultShutdownTimeout,
			PIDFile:          DefaultPIDFile,
		},
		Import: ImportConfig{
			InboxDir:   DefaultInboxDir,
			DebounceMS: DefaultDebounceMS,
			Mode:       DefaultImportMode,
		},
		Metrics: MetricsConfig{
			CollectionInterval: DefaultMetricsInterval,
		},
	}
}
