package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/deploymenttheory/go-rkimage/internal/utils/errors"
	"github.com/deploymenttheory/go-rkimage/internal/utils/fsutil"
	"github.com/deploymenttheory/go-rkimage/internal/utils/osutil"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name used for config files and directories
	AppName = "rkimage"

	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "RKIMAGE"
)

// AppConfig holds the application configuration
type AppConfig struct {
	// Core settings
	Debug        bool   `mapstructure:"debug"`
	LogFormat    string `mapstructure:"log_format"`
	LogFile      string `mapstructure:"log_file"`
	VerifyDigest bool   `mapstructure:"verify_digest"`

	Output struct {
		Format string `mapstructure:"format"` // table, json, yaml, xml, plist, bplist
	} `mapstructure:"output"`

	Extract struct {
		Dir              string `mapstructure:"dir"`
		Compression      string `mapstructure:"compression"` // none, gzip, xz, bzip2
		IncludeUnflashed bool   `mapstructure:"include_unflashed"`
		Overwrite        bool   `mapstructure:"overwrite"`
		Workers          int    `mapstructure:"workers"`
	} `mapstructure:"extract"`

	VirusTotal struct {
		APIKey          string        `mapstructure:"api_key"`
		RateLimitPerMin int           `mapstructure:"rate_limit_per_min"`
		RetryCount      int           `mapstructure:"retry_count"`
		RetryDelay      time.Duration `mapstructure:"retry_delay"`
		CacheSize       int           `mapstructure:"cache_size"`
		CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	} `mapstructure:"virustotal"`
}

var (
	// Global configuration instance
	Instance AppConfig

	// Status indicators
	ConfigLoaded bool
	ConfigFile   string

	v        *viper.Viper
	mu       sync.Mutex
	initOnce sync.Once
)

// Initialize loads configuration once from cfgFile, or from the standard
// search paths when cfgFile is empty.
func Initialize(cfgFile string) error {
	var err error
	initOnce.Do(func() {
		err = Reload(cfgFile)
	})
	return err
}

// Reload replaces the loaded configuration, e.g. when --config is given on
// the command line.
func Reload(cfgFile string) error {
	nv, cfg, loadedFrom, err := load(cfgFile)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	v = nv
	Instance = cfg
	ConfigFile = loadedFrom
	ConfigLoaded = loadedFrom != ""
	return nil
}

func load(cfgFile string) (*viper.Viper, AppConfig, string, error) {
	nv := viper.New()
	setDefaults(nv)

	if cfgFile != "" {
		nv.SetConfigFile(cfgFile)
	} else {
		nv.SetConfigName(AppName)
		nv.SetConfigType("yaml")
		addSearchPaths(nv)
	}

	nv.SetEnvPrefix(EnvPrefix)
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	nv.AutomaticEnv()

	loadedFrom := ""
	if err := nv.ReadInConfig(); err != nil {
		// A missing file in the search paths is fine; an explicit one is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return nil, AppConfig{}, "", fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		loadedFrom = nv.ConfigFileUsed()
	}

	var cfg AppConfig
	if err := nv.Unmarshal(&cfg); err != nil {
		return nil, AppConfig{}, "", fmt.Errorf("error parsing config: %w", err)
	}
	return nv, cfg, loadedFrom, nil
}

// BindFlag binds a command line flag to a configuration key and refreshes
// Instance. Flags that were not set on the command line leave the loaded
// value in place.
func BindFlag(key string, flag *pflag.Flag) error {
	mu.Lock()
	defer mu.Unlock()

	if v == nil {
		return fmt.Errorf("%w: configuration not initialized", errors.ErrConfigInvalid)
	}
	if flag == nil {
		return fmt.Errorf("%w: no flag for key %s", errors.ErrInvalidArgument, key)
	}
	if err := v.BindPFlag(key, flag); err != nil {
		return err
	}
	return v.Unmarshal(&Instance)
}

// Validate checks values that are constrained to a fixed set.
func Validate(cfg AppConfig) error {
	switch cfg.LogFormat {
	case "human", "json":
	default:
		return fmt.Errorf("%w: log_format %q", errors.ErrConfigInvalid, cfg.LogFormat)
	}
	switch cfg.Output.Format {
	case "table", "json", "yaml", "xml", "plist", "bplist":
	default:
		return fmt.Errorf("%w: output.format %q", errors.ErrConfigInvalid, cfg.Output.Format)
	}
	switch cfg.Extract.Compression {
	case "", "none", "gzip", "xz", "bzip2":
	default:
		return fmt.Errorf("%w: extract.compression %q", errors.ErrConfigInvalid, cfg.Extract.Compression)
	}
	if cfg.Extract.Workers < 1 {
		return fmt.Errorf("%w: extract.workers must be at least 1", errors.ErrConfigInvalid)
	}
	return nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("log_format", "human")
	v.SetDefault("log_file", "")
	v.SetDefault("verify_digest", false)

	v.SetDefault("output.format", "table")

	v.SetDefault("extract.dir", "extracted")
	v.SetDefault("extract.compression", "none")
	v.SetDefault("extract.include_unflashed", true)
	v.SetDefault("extract.overwrite", false)
	workers := osutil.GetNumCPU()
	if workers > 4 {
		workers = 4
	}
	v.SetDefault("extract.workers", workers)

	v.SetDefault("virustotal.api_key", "")
	v.SetDefault("virustotal.rate_limit_per_min", 4)
	v.SetDefault("virustotal.retry_count", 3)
	v.SetDefault("virustotal.retry_delay", 5*time.Second)
	v.SetDefault("virustotal.cache_size", 256)
	v.SetDefault("virustotal.cache_ttl", time.Hour)
}

// addSearchPaths adds config search paths
func addSearchPaths(v *viper.Viper) {
	v.AddConfigPath(".")

	if osutil.IsDevEnvironment() {
		return
	}

	if osutil.IsRunningInPipeline() {
		v.AddConfigPath("/etc/" + AppName)
		return
	}

	if configDir, err := fsutil.GetConfigDir(AppName); err == nil {
		v.AddConfigPath(configDir)
	}
	if systemConfigDir, err := fsutil.GetSystemConfigDir(AppName); err == nil {
		v.AddConfigPath(systemConfigDir)
	}
}
