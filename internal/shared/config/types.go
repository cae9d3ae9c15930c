package config

import "fmt"

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}

// TicketingConfig is the upstream ticket store. Fixture mode swaps the MySQL
// connection for an in-memory SQLite database seeded by the fixture package.
type TicketingConfig struct {
	DatabaseConfig `mapstructure:",squash"`
	Fixture        bool `mapstructure:"fixture"`
}

// AuxiliaryConfig is the read-only cross-system store holding turnup task
// records. Enabled=false skips the connection entirely; the fetcher treats
// the store as unreachable and continues without enrichment.
type AuxiliaryConfig struct {
	DatabaseConfig `mapstructure:",squash"`
	Enabled        bool `mapstructure:"enabled"`
}

// AnalysisStoreConfig is the locally owned result store (SQLite).
type AnalysisStoreConfig struct {
	Path string `mapstructure:"path"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// ProviderConfig configures the summarization provider. AgentID and CorpusID
// are written back after first creation and reused on later runs.
type ProviderConfig struct {
	APIKey             string `mapstructure:"api_key"`
	Model              string `mapstructure:"model"`
	AgentID            string `mapstructure:"agent_id"`
	CorpusID           string `mapstructure:"corpus_id"`
	RequestTimeoutSecs int    `mapstructure:"request_timeout_secs"`
	PollIntervalSecs   int    `mapstructure:"poll_interval_secs"`
	MaxRetries         int    `mapstructure:"max_retries"`
	PurgeRemote        bool   `mapstructure:"purge_remote"`
}

// PipelineConfig holds tunables for the analysis pipeline itself.
type PipelineConfig struct {
	BatchSize           int      `mapstructure:"batch_size"`
	ExcerptBudget       int      `mapstructure:"excerpt_budget"`
	UnitConcurrency     int      `mapstructure:"unit_concurrency"`
	WorkDir             string   `mapstructure:"work_dir"`
	DebugSinkDir        string   `mapstructure:"debug_sink_dir"`
	ExcludedDepartments []string `mapstructure:"excluded_departments"`
	ExcludedTypes       []string `mapstructure:"excluded_types"`
}
