// Package config loads the settings of a projection batch: a YAML run file,
// then a .env file, then PROJ_* environment overrides, then validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Output formats.
const (
	FormatCSV      = "csv"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// DateLayout is the layout of ValuationDate.
const DateLayout = "2006-01-02"

// Settings configures one batch.
type Settings struct {
	ValuationDate string `yaml:"valuation_date" env:"PROJ_VALUATION_DATE" validate:"required,datetime=2006-01-02"`
	// HorizonYears caps the projection length; 0 means no ceiling.
	HorizonYears int      `yaml:"horizon_years" env:"PROJ_HORIZON_YEARS" validate:"gte=0,lte=120"`
	Products     []string `yaml:"products" env:"PROJ_PRODUCTS" envSeparator:"," validate:"required,min=1,dive,required"`

	AssumptionBundle string `yaml:"assumption_bundle" env:"PROJ_ASSUMPTION_BUNDLE" validate:"required"`
	RepairBundle     bool   `yaml:"repair_bundle" env:"PROJ_REPAIR_BUNDLE"`
	// ModelPoints maps a model point set name to its CSV file.
	ModelPoints map[string]string `yaml:"model_points" env:"PROJ_MODEL_POINTS" validate:"required,min=1,dive,required"`

	OutputDir      string   `yaml:"output_dir" env:"PROJ_OUTPUT_DIR" validate:"required"`
	Formats        []string `yaml:"formats" env:"PROJ_FORMATS" envSeparator:"," validate:"dive,oneof=csv json markdown html"`
	SnapshotPeriod int      `yaml:"snapshot_period" env:"PROJ_SNAPSHOT_PERIOD" validate:"gte=0"`
	Parallelism    int      `yaml:"parallelism" env:"PROJ_PARALLELISM" validate:"gte=1,lte=256"`

	DatabaseURL     string `yaml:"database_url" env:"PROJ_DATABASE_URL"`
	RunLogPath      string `yaml:"run_log" env:"PROJ_RUN_LOG"`
	MetricsTextfile string `yaml:"metrics_textfile" env:"PROJ_METRICS_TEXTFILE"`

	LogLevel  string `yaml:"log_level" env:"PROJ_LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" env:"PROJ_LOG_FORMAT" validate:"oneof=text json"`
}

// Defaults returns the settings used for anything a run file leaves out.
func Defaults() *Settings {
	return &Settings{
		Products:    []string{},
		ModelPoints: map[string]string{},
		OutputDir:   "out",
		Formats:     []string{FormatCSV, FormatMarkdown},
		Parallelism: 4,
		RunLogPath:  "runs.db",
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

var settingsValidate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the run file at path (optional) after applying envFiles
// (default ".env"; missing files are skipped), then applies environment
// overrides and validates the result.
func Load(path string, envFiles ...string) (*Settings, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	s := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read settings: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, s); err != nil {
			return nil, fmt.Errorf("parse settings %s: %w", path, err)
		}
	}
	if err := env.Parse(s); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the settings.
func (s *Settings) Validate() error {
	if err := settingsValidate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("invalid settings: %w", err)
		}
		msgs := make([]string, len(verrs))
		for i, fe := range verrs {
			msgs[i] = fmt.Sprintf("%s fails %s", fe.Namespace(), fe.Tag())
			if fe.Param() != "" {
				msgs[i] += "=" + fe.Param()
			}
		}
		return fmt.Errorf("invalid settings: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// Date returns the parsed valuation date.
func (s *Settings) Date() (time.Time, error) {
	d, err := time.Parse(DateLayout, s.ValuationDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("valuation date: %w", err)
	}
	return d, nil
}

// Wants reports whether format is one of the requested output formats.
func (s *Settings) Wants(format string) bool {
	for _, f := range s.Formats {
		if f == format {
			return true
		}
	}
	return false
}
