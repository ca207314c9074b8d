// Package config loads process settings and the profiles file.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. LEDGERSYNC_DATA_DIR.
const EnvPrefix = "LEDGERSYNC"

// Settings are the process-wide options shared by all binaries.
type Settings struct {
	ListenAddr string `mapstructure:"listen_addr"`
	DataDir    string `mapstructure:"data_dir"`

	// ProfilesFile defaults to <data_dir>/profiles.yaml.
	ProfilesFile string `mapstructure:"profiles_file"`
	// HistoryDB defaults to <data_dir>/history.sqlite. "memory" keeps
	// history in process only.
	HistoryDB string `mapstructure:"history_db"`

	LogLevel      string `mapstructure:"log_level"`
	LogBufferSize int    `mapstructure:"log_buffer_size"`

	PurgeWorkdir    bool `mapstructure:"purge_workdir"`
	ImportBatchSize int  `mapstructure:"import_batch_size"`

	// APIToken protects the dashboard API when set.
	APIToken string `mapstructure:"api_token"`

	Archive ArchiveSettings `mapstructure:"archive"`
}

// ArchiveSettings enables the optional Cloud Storage and BigQuery archives.
type ArchiveSettings struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`

	BigQueryProject string `mapstructure:"bigquery_project"`
	BigQueryDataset string `mapstructure:"bigquery_dataset"`
	BigQueryTable   string `mapstructure:"bigquery_table"`

	// CredentialsFile is a service account key; empty uses Application
	// Default Credentials.
	CredentialsFile string `mapstructure:"credentials_file"`
}

// HistoryInMemory is the history_db value that disables the SQLite store.
const HistoryInMemory = "memory"

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("profiles_file", "")
	v.SetDefault("history_db", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_buffer_size", 1000)
	v.SetDefault("purge_workdir", false)
	v.SetDefault("import_batch_size", 250)
	v.SetDefault("api_token", "")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.gcs_prefix", "runs")
	v.SetDefault("archive.bigquery_project", "")
	v.SetDefault("archive.bigquery_dataset", "")
	v.SetDefault("archive.bigquery_table", "sync_runs")
	v.SetDefault("archive.credentials_file", "")
}

// LoadSettings reads settings from path (optional) and LEDGERSYNC_*
// environment variables; the environment wins.
func LoadSettings(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("LoadSettings: reading %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("LoadSettings: decoding: %w", err)
	}
	s.resolve()
	return &s, nil
}

func (s *Settings) resolve() {
	if s.DataDir == "" {
		s.DataDir = "."
	}
	if s.ProfilesFile == "" {
		s.ProfilesFile = filepath.Join(s.DataDir, "profiles.yaml")
	}
	if s.HistoryDB == "" {
		s.HistoryDB = filepath.Join(s.DataDir, "history.sqlite")
	}
	if s.LogBufferSize <= 0 {
		s.LogBufferSize = 1000
	}
}

// GCSEnabled reports whether runs are archived to Cloud Storage.
func (a ArchiveSettings) GCSEnabled() bool { return a.GCSBucket != "" }

// BigQueryEnabled reports whether runs are archived to BigQuery.
func (a ArchiveSettings) BigQueryEnabled() bool {
	return a.BigQueryProject != "" && a.BigQueryDataset != ""
}
