package am

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/teranos/autonomy/errors"
)

// SystemConfigPath is the lowest-precedence config file
const SystemConfigPath = "/etc/autonomy/am.toml"

var (
	loadMu        sync.Mutex
	globalConfig  *Config
	viperInstance *viper.Viper

	// ConfigSources records which file each key was last merged from
	ConfigSources = map[string]SourceInfo{}
)

// Load reads the autonomy configuration using Viper
func Load() (*Config, error) {
	loadMu.Lock()
	defer loadMu.Unlock()

	if globalConfig != nil {
		return globalConfig, nil
	}

	config, err := LoadWithViper(initViper())
	if err != nil {
		return nil, err
	}

	globalConfig = config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() *viper.Viper {
	loadMu.Lock()
	defer loadMu.Unlock()
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	// Set defaults but don't bind environment variables for this specific load
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	config, err := LoadWithViper(v)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load config from %s", configPath)
	}
	return config, nil
}

// Reset clears the cached configuration (useful for testing and hot reload)
func Reset() {
	loadMu.Lock()
	defer loadMu.Unlock()
	globalConfig = nil
	viperInstance = nil
	ConfigSources = map[string]SourceInfo{}
}

// ActiveConfigFile returns the highest-precedence config file that was merged,
// or an empty string when only defaults and environment are in effect.
func ActiveConfigFile() string {
	_ = GetViper()

	loadMu.Lock()
	defer loadMu.Unlock()

	best := ""
	rank := -1
	for _, info := range ConfigSources {
		if r := sourceRank(info.Source); r > rank {
			best, rank = info.Path, r
		}
	}
	return best
}

// initViper initializes Viper with configuration sources and defaults.
// Callers hold loadMu.
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("AUTONOMY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	BindSensitiveEnvVars(v)

	SetDefaults(v)

	// Files merge into the config layer, so env vars keep precedence over them
	mergeConfigFiles(v)

	viperInstance = v
	return v
}

// findProjectConfig searches for am.toml by walking up the directory tree
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		amPath := filepath.Join(dir, "am.toml")
		if _, err := os.Stat(amPath); err == nil {
			return amPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

type configFile struct {
	path   string
	source ConfigSource
}

// configFiles lists candidate files from lowest to highest precedence
func configFiles() []configFile {
	files := []configFile{{SystemConfigPath, SourceSystem}}

	if homeDir, err := os.UserHomeDir(); err == nil {
		files = append(files, configFile{filepath.Join(homeDir, ".autonomy", "am.toml"), SourceUser})
	}

	if project := findProjectConfig(); project != "" {
		// The user file is also found by the upward search when running from $HOME/.autonomy
		if len(files) < 2 || files[len(files)-1].path != project {
			files = append(files, configFile{project, SourceProject})
		}
	}
	return files
}

// mergeConfigFiles merges configuration files in precedence order
// Precedence (lowest to highest): system < user < project < env vars
func mergeConfigFiles(v *viper.Viper) {
	for _, file := range configFiles() {
		if _, err := os.Stat(file.path); err != nil {
			continue
		}

		tempViper := viper.New()
		tempViper.SetConfigFile(file.path)
		tempViper.SetConfigType("toml")
		if err := tempViper.ReadInConfig(); err != nil {
			continue
		}

		if err := v.MergeConfigMap(tempViper.AllSettings()); err != nil {
			continue
		}
		for _, key := range tempViper.AllKeys() {
			ConfigSources[key] = SourceInfo{Source: file.source, Path: file.path}
		}
	}
}
