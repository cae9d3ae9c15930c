package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	sharedConfig "chainalyzer/internal/shared/config"
)

type Config struct {
	Ticketing     sharedConfig.TicketingConfig     `mapstructure:"ticketing"`
	Auxiliary     sharedConfig.AuxiliaryConfig     `mapstructure:"auxiliary"`
	AnalysisStore sharedConfig.AnalysisStoreConfig `mapstructure:"analysis_store"`
	Logger        sharedConfig.LoggerConfig        `mapstructure:"logger"`
	Provider      sharedConfig.ProviderConfig      `mapstructure:"provider"`
	Pipeline      sharedConfig.PipelineConfig      `mapstructure:"pipeline"`
}

var (
	appConfig   *Config
	appConfigMu sync.RWMutex
)

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../configs")
	viper.AddConfigPath("../../configs")

	viper.SetEnvPrefix("CHAINALYZER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine when env vars and defaults cover
		// everything; any other read failure is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	appConfigMu.Lock()
	appConfig = &config
	appConfigMu.Unlock()

	return &config, nil
}

// Get returns the loaded configuration
func Get() *Config {
	appConfigMu.RLock()
	defer appConfigMu.RUnlock()
	return appConfig
}

// SaveProviderIDs persists freshly created agent/corpus identifiers back to
// the config file so later runs reuse them instead of re-creating remote
// resources. The whole file is rewritten atomically via a temp file rename;
// a half-written config would otherwise orphan the remote resources.
func SaveProviderIDs(agentID, corpusID string) error {
	appConfigMu.Lock()
	defer appConfigMu.Unlock()

	viper.Set("provider.agent_id", agentID)
	viper.Set("provider.corpus_id", corpusID)
	if appConfig != nil {
		appConfig.Provider.AgentID = agentID
		appConfig.Provider.CorpusID = corpusID
	}

	target := viper.ConfigFileUsed()
	if target == "" {
		target = filepath.Join("configs", "config.yaml")
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("failed to create config dir: %w", err)
		}
	}

	tmp := target + ".tmp"
	if err := viper.WriteConfigAs(tmp); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Ticketing store defaults
	viper.SetDefault("ticketing.host", "localhost")
	viper.SetDefault("ticketing.port", 3306)
	viper.SetDefault("ticketing.username", "root")
	viper.SetDefault("ticketing.password", "password")
	viper.SetDefault("ticketing.database", "ticketing")
	viper.SetDefault("ticketing.max_idle_conns", 10)
	viper.SetDefault("ticketing.max_open_conns", 100)
	viper.SetDefault("ticketing.conn_max_lifetime", 60)
	viper.SetDefault("ticketing.fixture", false)

	// Auxiliary store defaults
	viper.SetDefault("auxiliary.enabled", false)
	viper.SetDefault("auxiliary.host", "localhost")
	viper.SetDefault("auxiliary.port", 3306)
	viper.SetDefault("auxiliary.username", "root")
	viper.SetDefault("auxiliary.password", "password")
	viper.SetDefault("auxiliary.database", "fieldops")
	viper.SetDefault("auxiliary.max_idle_conns", 5)
	viper.SetDefault("auxiliary.max_open_conns", 20)
	viper.SetDefault("auxiliary.conn_max_lifetime", 60)

	// Analysis store defaults
	viper.SetDefault("analysis_store.path", "data/analysis.db")

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")
	viper.SetDefault("logger.output_path", "stdout")

	// Provider defaults
	viper.SetDefault("provider.api_key", "")
	viper.SetDefault("provider.model", "gpt-4o")
	viper.SetDefault("provider.agent_id", "")
	viper.SetDefault("provider.corpus_id", "")
	viper.SetDefault("provider.request_timeout_secs", 300)
	viper.SetDefault("provider.poll_interval_secs", 5)
	viper.SetDefault("provider.max_retries", 3)
	viper.SetDefault("provider.purge_remote", false)

	// Pipeline defaults
	viper.SetDefault("pipeline.batch_size", 3)
	viper.SetDefault("pipeline.excerpt_budget", 300)
	viper.SetDefault("pipeline.unit_concurrency", 1)
	viper.SetDefault("pipeline.work_dir", "data/work")
	viper.SetDefault("pipeline.debug_sink_dir", "")
	viper.SetDefault("pipeline.excluded_departments", []string{
		"Add to NPM",
		"Helpdesk Tier 1",
		"Helpdesk Tier 2",
		"Helpdesk Tier 3",
		"Engineering",
	})
	viper.SetDefault("pipeline.excluded_types", []string{"3rd Party Turnup"})
}
