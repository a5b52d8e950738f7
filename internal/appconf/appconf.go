// Package appconf holds application-level configuration: the runtime
// environment and the settings shared by the command line tools, loaded
// from a YAML file and validated up front.
package appconf

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"corridorutils.mtcplanning.org/internal/models"
)

// Environment represents the runtime environment of the application.
type Environment int

const (
	Development Environment = iota
	Test
	Production
)

func (e Environment) String() string {
	switch e {
	case Test:
		return "test"
	case Production:
		return "production"
	default:
		return "development"
	}
}

// EnvFlagToEnvironment maps a command-line environment flag to an Environment.
// Unrecognized values fall back to Development.
func EnvFlagToEnvironment(flag string) Environment {
	switch flag {
	case "test":
		return Test
	case "production", "prod":
		return Production
	default:
		return Development
	}
}

// ReportConfig describes the roadway analytics report to request: the date
// range, the corridors to include, and the vendor report options.
// The report section is optional as a whole (the volume and transit modes do
// not need it); the roadway client re-validates the fields it requires before
// submitting a report.
type ReportConfig struct {
	StartDate   string            `yaml:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate     string            `yaml:"endDate" validate:"omitempty,datetime=2006-01-02"`
	Granularity int               `yaml:"granularity" validate:"omitempty,oneof=1 5 15 60"`
	MapVersion  string            `yaml:"mapVersion"`
	Timezone    string            `yaml:"timezone"`
	Corridors   []models.Corridor `yaml:"corridors" validate:"omitempty,dive"`
}

// Config is the root configuration for the corridor utilities.
type Config struct {
	Env     Environment `yaml:"-"`
	Verbose bool        `yaml:"verbose"`

	RoadwayBaseURL   string `yaml:"roadwayBaseURL" validate:"omitempty,url"`
	RoadwayCredsPath string `yaml:"roadwayCredsPath"`
	TransitBaseURL   string `yaml:"transitBaseURL" validate:"omitempty,url"`
	TransitCredsPath string `yaml:"transitCredsPath"`

	// DBPath is the SQLite database used to persist corridor aggregates.
	// Defaults to in-memory when empty.
	DBPath string `yaml:"dbPath"`

	Report ReportConfig `yaml:"report"`
}

// LoadFromFile reads and validates the YAML configuration at path.
func LoadFromFile(path string, env Environment) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("unable to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("unable to parse config file %s: %w", path, err)
	}
	cfg.Env = env

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	if cfg.DBPath == "" {
		cfg.DBPath = ":memory:"
	}
	if cfg.Report.Timezone == "" {
		cfg.Report.Timezone = "America/Los_Angeles"
	}

	return cfg, nil
}
