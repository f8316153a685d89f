// Package config defines the configuration of a node running the history
// proofs, and how it is read from a YAML file.
package config

import (
	"io/ioutil"
	"time"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

const (
	defaultBootstrapGracePeriod  = 3 * time.Minute
	defaultTransitionGracePeriod = 30 * time.Second
	defaultDatabasePath          = "history.db"
	defaultLogLevel              = "info"
	defaultVerificationCacheSize = 1024
)

// Tss is the configuration of the roster transitions.
type Tss struct {
	// BootstrapGracePeriod is how long the genesis construction waits for the
	// proof keys of all the nodes.
	BootstrapGracePeriod time.Duration `yaml:"bootstrapGracePeriod"`

	// TransitionGracePeriod is how long a construction for a candidate roster
	// waits for the proof keys of all the nodes.
	TransitionGracePeriod time.Duration `yaml:"transitionGracePeriod"`
}

// GracePeriod returns the grace period of a construction.
func (t Tss) GracePeriod(bootstrap bool) time.Duration {
	if bootstrap {
		return t.BootstrapGracePeriod
	}

	return t.TransitionGracePeriod
}

// Config is the configuration of a node.
type Config struct {
	Tss Tss `yaml:"tss"`

	// ExecutorSize is the maximum number of tasks running at the same time. A
	// value of zero uses the number of CPUs.
	ExecutorSize int `yaml:"executorSize"`

	DatabasePath string `yaml:"databasePath"`
	LogLevel     string `yaml:"logLevel"`

	// VerificationCacheSize is the number of valid signatures remembered by
	// the library. Zero disables the cache.
	VerificationCacheSize int `yaml:"verificationCacheSize"`
}

// Default returns the configuration used for missing fields.
func Default() Config {
	return Config{
		Tss: Tss{
			BootstrapGracePeriod:  defaultBootstrapGracePeriod,
			TransitionGracePeriod: defaultTransitionGracePeriod,
		},
		DatabasePath: defaultDatabasePath,
		LogLevel:     defaultLogLevel,

		VerificationCacheSize: defaultVerificationCacheSize,
	}
}

// Parse reads the configuration from YAML. Fields that are not set keep their
// default value.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	err := yaml.UnmarshalStrict(data, &cfg)
	if err != nil {
		return cfg, xerrors.Errorf("couldn't unmarshal config: %v", err)
	}

	err = cfg.Validate()
	if err != nil {
		return cfg, xerrors.Errorf("invalid config: %v", err)
	}

	return cfg, nil
}

// Load reads the configuration from the file at the given path.
func Load(path string) (Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return Default(), xerrors.Errorf("couldn't read config file: %v", err)
	}

	return Parse(data)
}

// Validate returns an error if a field has an invalid value.
func (c Config) Validate() error {
	if c.Tss.BootstrapGracePeriod < 0 {
		return xerrors.Errorf("negative bootstrap grace period: %v", c.Tss.BootstrapGracePeriod)
	}

	if c.Tss.TransitionGracePeriod < 0 {
		return xerrors.Errorf("negative transition grace period: %v", c.Tss.TransitionGracePeriod)
	}

	if c.ExecutorSize < 0 {
		return xerrors.Errorf("negative executor size: %d", c.ExecutorSize)
	}

	if c.VerificationCacheSize < 0 {
		return xerrors.Errorf("negative verification cache size: %d", c.VerificationCacheSize)
	}

	if c.DatabasePath == "" {
		return xerrors.New("missing database path")
	}

	return nil
}

// Marshal returns the YAML representation of the configuration.
func (c Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal config: %v", err)
	}

	return data, nil
}
