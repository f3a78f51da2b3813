package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"

	"taxosurv/internal/errors"

	"gopkg.in/yaml.v3"
)

// Config represents the complete run configuration
type Config struct {
	Paths  PathConfig   `yaml:"paths"`
	Run    RunConfig    `yaml:"run"`
	Report ReportConfig `yaml:"report"`
	Log    LogConfig    `yaml:"log"`
}

// PathConfig holds input and output locations
type PathConfig struct {
	InputData  string `yaml:"input_data"`
	CancerList string `yaml:"cancer_list"`
	TaxaList   string `yaml:"taxa_list"`
	OutputDir  string `yaml:"output_dir"`
	OSOutput   string `yaml:"os_output"`
	PFSOutput  string `yaml:"pfs_output"`
}

// RunConfig holds execution settings
type RunConfig struct {
	Workers int `yaml:"workers"`
}

// ReportConfig controls the run report written next to the results
type ReportConfig struct {
	Enabled bool    `yaml:"enabled"`
	File    string  `yaml:"file"`
	Alpha   float64 `yaml:"alpha"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default output names
const (
	DefaultOSOutput   = "OS_result.txt"
	DefaultPFSOutput  = "PFS_result.txt"
	DefaultReportFile = "run_report.yaml"
	DefaultAlpha      = 0.05
)

// Load reads configuration from environment variables, falling back to defaults
func Load() *Config {
	return &Config{
		Paths: PathConfig{
			InputData:  getEnvOrDefault("TAXOSURV_INPUT_DATA", ""),
			CancerList: getEnvOrDefault("TAXOSURV_CANCER_LIST", ""),
			TaxaList:   getEnvOrDefault("TAXOSURV_TAXA_LIST", ""),
			OutputDir:  getEnvOrDefault("TAXOSURV_OUTPUT_DIR", ""),
			OSOutput:   getEnvOrDefault("TAXOSURV_OS_OUTPUT", DefaultOSOutput),
			PFSOutput:  getEnvOrDefault("TAXOSURV_PFS_OUTPUT", DefaultPFSOutput),
		},
		Run: RunConfig{
			Workers: getEnvIntOrDefault("TAXOSURV_WORKERS", runtime.NumCPU()),
		},
		Report: ReportConfig{
			Enabled: getEnvBoolOrDefault("TAXOSURV_REPORT", true),
			File:    getEnvOrDefault("TAXOSURV_REPORT_FILE", DefaultReportFile),
			Alpha:   getEnvFloatOrDefault("TAXOSURV_ALPHA", DefaultAlpha),
		},
		Log: LogConfig{
			Level: getEnvOrDefault("TAXOSURV_LOG_LEVEL", "info"),
		},
	}
}

// ApplyFile overlays the non-empty fields of a YAML run file onto c
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.IOError(path, err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, errors.Wrapf(err, "parse config %s", path))
	}

	overlay(&c.Paths.InputData, file.Paths.InputData)
	overlay(&c.Paths.CancerList, file.Paths.CancerList)
	overlay(&c.Paths.TaxaList, file.Paths.TaxaList)
	overlay(&c.Paths.OutputDir, file.Paths.OutputDir)
	overlay(&c.Paths.OSOutput, file.Paths.OSOutput)
	overlay(&c.Paths.PFSOutput, file.Paths.PFSOutput)
	overlay(&c.Report.File, file.Report.File)
	overlay(&c.Log.Level, file.Log.Level)
	if file.Run.Workers > 0 {
		c.Run.Workers = file.Run.Workers
	}
	if file.Report.Alpha > 0 {
		c.Report.Alpha = file.Report.Alpha
	}
	// enabled is only honoured when the report section is present
	if hasKey(data, "report", "enabled") {
		c.Report.Enabled = file.Report.Enabled
	}
	return nil
}

// Validate checks that the configuration can drive a run
func (c *Config) Validate() error {
	required := []struct {
		name, value string
	}{
		{"input data", c.Paths.InputData},
		{"cancer list", c.Paths.CancerList},
		{"taxa list", c.Paths.TaxaList},
		{"output directory", c.Paths.OutputDir},
		{"OS output name", c.Paths.OSOutput},
		{"PFS output name", c.Paths.PFSOutput},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return errors.ConfigInvalid(r.name + " is required")
		}
	}
	if c.Paths.OSOutput == c.Paths.PFSOutput {
		return errors.ConfigInvalid("OS and PFS outputs must be different files")
	}
	if c.Run.Workers < 1 {
		return errors.ConfigInvalid("workers must be at least 1")
	}
	if c.Report.Alpha <= 0 || c.Report.Alpha >= 1 {
		return errors.ConfigInvalid("alpha must be in (0, 1)")
	}
	return nil
}

func overlay(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func hasKey(data []byte, section, key string) bool {
	var raw map[string]map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return false
	}
	_, ok := raw[section][key]
	return ok
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
