package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	commonerrors "github.com/deploymenttheory/go-recipe-runner/internal/common/errors"
	"github.com/deploymenttheory/go-recipe-runner/internal/common/fsutil"
	"github.com/deploymenttheory/go-recipe-runner/internal/common/osutil"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name used for config files and directories
	AppName = "go-recipe-runner"

	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "RECIPE_RUNNER"
)

// AppConfig holds the application configuration
type AppConfig struct {
	// Core settings
	Debug     bool   `mapstructure:"debug"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	// Build settings, forwarded to the executor
	Build struct {
		Parallelism          int           `mapstructure:"parallelism"`
		InstallPrefix        string        `mapstructure:"install_prefix"`
		KeepWorkingDirectory bool          `mapstructure:"keep_working_directory"`
		WorkRoot             string        `mapstructure:"work_root"`
		Timeout              time.Duration `mapstructure:"timeout"`
		StepLogDir           string        `mapstructure:"step_log_dir"`
	} `mapstructure:"build"`

	// Source fetch settings
	Source struct {
		Fetch    bool          `mapstructure:"fetch"`
		Timeout  time.Duration `mapstructure:"timeout"`
		Retries  uint          `mapstructure:"retries"`
		CacheDir string        `mapstructure:"cache_dir"`
	} `mapstructure:"source"`

	// Dependency discovery settings
	Dependencies struct {
		Available  []string `mapstructure:"available"`
		SearchPath bool     `mapstructure:"search_path"`
		PrefixOpt  bool     `mapstructure:"prefix_opt"`
		Registry   bool     `mapstructure:"registry"`
	} `mapstructure:"dependencies"`

	// Source archive scanning
	Scan struct {
		Enabled          bool   `mapstructure:"enabled"`
		VirusTotalAPIKey string `mapstructure:"virustotal_api_key"`
		MaxMalicious     int    `mapstructure:"max_malicious"`
	} `mapstructure:"scan"`

	// Install receipts
	Receipt struct {
		Enabled bool   `mapstructure:"enabled"`
		Format  string `mapstructure:"format"` // json or plist
		Dir     string `mapstructure:"dir"`
	} `mapstructure:"receipt"`

	// Install history
	Registry struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"registry"`
}

// Global variables
var (
	// Global configuration instance
	Instance AppConfig

	// Status indicators
	ConfigLoaded bool
	ConfigFile   string

	// Viper instance
	v *viper.Viper

	initOnce sync.Once
)

// Initialize sets up the configuration system
func Initialize(cfgFile string) error {
	var err error

	initOnce.Do(func() {
		v = viper.New()

		setDefaults(v)

		if cfgFile != "" {
			v.SetConfigFile(cfgFile)
		} else {
			v.SetConfigName(AppName)
			v.SetConfigType("yaml")
			addSearchPaths(v)
		}

		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		v.AutomaticEnv()

		if readErr := v.ReadInConfig(); readErr != nil {
			if _, ok := readErr.(viper.ConfigFileNotFoundError); !ok {
				// Only capture error if the config file was found but couldn't be read
				err = fmt.Errorf("%w: %v", commonerrors.ErrConfigParseError, readErr)
			}
			ConfigLoaded = false
			ConfigFile = ""
		} else {
			ConfigLoaded = true
			ConfigFile = v.ConfigFileUsed()
		}

		if unmarshalErr := v.Unmarshal(&Instance); unmarshalErr != nil {
			err = fmt.Errorf("%w: %v", commonerrors.ErrConfigParseError, unmarshalErr)
			return
		}

		if validateErr := Validate(Instance); validateErr != nil {
			err = validateErr
		}
	})

	return err
}

// Viper returns the viper instance backing Instance, so commands can bind
// their flags to it. It is nil before Initialize.
func Viper() *viper.Viper {
	return v
}

// Reload re-reads the bound viper state into Instance. Commands call it after
// flag parsing so that bound flags take effect.
func Reload() error {
	if v == nil {
		return commonerrors.ErrNotInitialized
	}
	if err := v.Unmarshal(&Instance); err != nil {
		return fmt.Errorf("%w: %v", commonerrors.ErrConfigParseError, err)
	}
	return Validate(Instance)
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("log_format", "human")

	logDir, err := fsutil.GetLogDir(AppName)
	if err != nil {
		logDir = "logs"
	}
	v.SetDefault("log_file", filepath.Join(logDir, "recipe-runner.log"))

	tempDir, err := fsutil.GetTempDir(AppName)
	if err != nil {
		tempDir = "temp"
	}
	v.SetDefault("build.parallelism", osutil.GetNumCPU())
	v.SetDefault("build.install_prefix", "/usr/local")
	v.SetDefault("build.keep_working_directory", false)
	v.SetDefault("build.work_root", tempDir)
	v.SetDefault("build.timeout", time.Duration(0))
	v.SetDefault("build.step_log_dir", filepath.Join(logDir, "steps"))

	cacheDir, err := fsutil.GetCacheDir(AppName)
	if err != nil {
		cacheDir = "cache"
	}
	v.SetDefault("source.fetch", true)
	v.SetDefault("source.timeout", 5*time.Minute)
	v.SetDefault("source.retries", 3)
	v.SetDefault("source.cache_dir", filepath.Join(cacheDir, "sources"))

	v.SetDefault("dependencies.available", []string{})
	v.SetDefault("dependencies.search_path", true)
	v.SetDefault("dependencies.prefix_opt", true)
	v.SetDefault("dependencies.registry", true)

	v.SetDefault("scan.enabled", false)
	v.SetDefault("scan.virustotal_api_key", "")
	v.SetDefault("scan.max_malicious", 0)

	dataDir, err := fsutil.GetDataDir(AppName)
	if err != nil {
		dataDir = "data"
	}
	v.SetDefault("receipt.enabled", true)
	v.SetDefault("receipt.format", "json")
	v.SetDefault("receipt.dir", filepath.Join(dataDir, "receipts"))

	v.SetDefault("registry.path", filepath.Join(dataDir, "registry.db"))
}

// addSearchPaths adds config search paths
func addSearchPaths(v *viper.Viper) {
	// Always check current directory first
	v.AddConfigPath(".")

	if osutil.IsDevEnvironment() {
		return
	}

	// In CI only the current directory and /etc are trusted
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

// Validate checks the settings that the executor relies on
func Validate(cfg AppConfig) error {
	var problems []string

	if cfg.Build.Parallelism < 1 {
		problems = append(problems, fmt.Sprintf("build.parallelism must be >= 1, got %d", cfg.Build.Parallelism))
	}
	if cfg.Build.Timeout < 0 {
		problems = append(problems, "build.timeout must not be negative")
	}
	switch cfg.LogFormat {
	case "human", "json":
	default:
		problems = append(problems, fmt.Sprintf("log_format must be human or json, got %q", cfg.LogFormat))
	}
	switch cfg.Receipt.Format {
	case "json", "plist":
	default:
		problems = append(problems, fmt.Sprintf("receipt.format must be json or plist, got %q", cfg.Receipt.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", commonerrors.ErrConfigInvalid, strings.Join(problems, "; "))
	}
	return nil
}
