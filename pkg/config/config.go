// Package config provides configuration loading and management for tagalign.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"tagalign/pkg/transform"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Registration parameters
	Registration struct {
		// Family is the transform model fitted when none is given on the
		// command line ("rigid", "similarity", "9", "10", "affine", "tps")
		Family string `yaml:"family"`
	} `yaml:"registration"`

	// Levenberg-Marquardt refinement parameters
	Solver struct {
		// FunctionTolerance stops refinement when the relative cost reduction falls below it
		FunctionTolerance float64 `yaml:"functionTolerance"`

		// ParameterTolerance stops refinement when the relative step falls below it
		ParameterTolerance float64 `yaml:"parameterTolerance"`

		// GradientTolerance stops refinement when the gradient falls below it
		GradientTolerance float64 `yaml:"gradientTolerance"`

		// MaxEvaluations bounds the number of residual evaluations
		MaxEvaluations int `yaml:"maxEvaluations"`
	} `yaml:"solver"`

	// Thin-plate spline inversion parameters
	Inverse struct {
		// Tolerance is the residual distance in mm at which Newton-Raphson stops
		Tolerance float64 `yaml:"tolerance"`

		// MaxIterations bounds the number of Newton-Raphson steps
		MaxIterations int `yaml:"maxIterations"`

		// JacobianStep is the finite-difference step in mm
		JacobianStep float64 `yaml:"jacobianStep"`
	} `yaml:"inverse"`

	// Output parameters
	Output struct {
		// Comment is written into the header of saved transform files
		Comment string `yaml:"comment"`

		// Verbose enables debug logging of the solvers
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Registration.Family = "rigid"

	s := transform.DefaultSettings()
	cfg.Solver.FunctionTolerance = s.FunctionTolerance
	cfg.Solver.ParameterTolerance = s.ParameterTolerance
	cfg.Solver.GradientTolerance = s.GradientTolerance
	cfg.Solver.MaxEvaluations = s.MaxEvaluations

	inv := transform.DefaultInverseOptions()
	cfg.Inverse.Tolerance = inv.Tolerance
	cfg.Inverse.MaxIterations = inv.MaxIterations
	cfg.Inverse.JacobianStep = inv.JacobianStep

	cfg.Output.Comment = "created by tagalign"
	cfg.Output.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return cfg, nil
}

// Validate checks that the numeric settings are usable
func (c *Config) Validate() error {
	if _, err := transform.ParseFamily(c.Registration.Family); err != nil {
		return err
	}
	if c.Solver.MaxEvaluations <= 0 {
		return fmt.Errorf("solver.maxEvaluations must be positive, got %d", c.Solver.MaxEvaluations)
	}
	if c.Solver.FunctionTolerance < 0 || c.Solver.ParameterTolerance < 0 || c.Solver.GradientTolerance < 0 {
		return fmt.Errorf("solver tolerances must not be negative")
	}
	if c.Inverse.Tolerance <= 0 || c.Inverse.JacobianStep <= 0 {
		return fmt.Errorf("inverse.tolerance and inverse.jacobianStep must be positive")
	}
	if c.Inverse.MaxIterations < 0 {
		return fmt.Errorf("inverse.maxIterations must not be negative, got %d", c.Inverse.MaxIterations)
	}
	return nil
}

// Family returns the configured default transform family
func (c *Config) Family() (transform.Family, error) {
	return transform.ParseFamily(c.Registration.Family)
}

// Settings returns the refinement settings for transform.ComputeWithSettings
func (c *Config) Settings() transform.Settings {
	return transform.Settings{
		FunctionTolerance:  c.Solver.FunctionTolerance,
		ParameterTolerance: c.Solver.ParameterTolerance,
		GradientTolerance:  c.Solver.GradientTolerance,
		MaxEvaluations:     c.Solver.MaxEvaluations,
	}
}

// InverseOptions returns the thin-plate spline inversion options
func (c *Config) InverseOptions() transform.InverseOptions {
	return transform.InverseOptions{
		Tolerance:     c.Inverse.Tolerance,
		MaxIterations: c.Inverse.MaxIterations,
		JacobianStep:  c.Inverse.JacobianStep,
	}
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
