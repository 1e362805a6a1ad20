package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateRegistry(); err != nil {
		return err
	}
	if err := c.validateAlignment(); err != nil {
		return err
	}
	if err := c.validateLFP(); err != nil {
		return err
	}
	if err := c.validatePackaging(); err != nil {
		return err
	}
	if err := c.validatePublish(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePackaging() error {
	name := c.Packaging.ContainerName
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("packaging.container_name must be a file name, got %q", name)
	}
	if !strings.Contains(name, "{session}") {
		return fmt.Errorf("packaging.container_name must contain {session}, got %q", name)
	}
	return nil
}

func (c *Config) validatePaths() error {
	if len(c.Paths.SessionRoots) == 0 {
		return errors.New("paths.session_roots must list at least one directory")
	}
	if strings.Contains(c.Paths.OutputSubdir, "..") {
		return fmt.Errorf("paths.output_subdir must stay inside the session directory, got %q", c.Paths.OutputSubdir)
	}
	return nil
}

func (c *Config) validateRegistry() error {
	switch c.Registry.Mode {
	case RegistryFile:
		if c.Registry.Path == "" {
			return errors.New("registry.path must be set when registry.mode is \"file\"")
		}
	case RegistrySQLite:
		if c.Registry.SQLitePath == "" {
			return errors.New("registry.sqlite_path must be set when registry.mode is \"sqlite\"")
		}
	case RegistryPostgres:
		if c.Registry.DSN == "" {
			return errors.New("registry.dsn must be set when registry.mode is \"postgres\" (or export NPPROBES_REGISTRY_DSN)")
		}
	case RegistryRandom:
	default:
		return fmt.Errorf("registry.mode: unsupported value %q (want file, sqlite, postgres, or random)", c.Registry.Mode)
	}
	return nil
}

func (c *Config) validateAlignment() error {
	if c.Alignment.APSamplingRate <= 0 {
		return errors.New("alignment.ap_sampling_rate must be positive")
	}
	if c.Alignment.LFPSamplingRate <= 0 {
		return errors.New("alignment.lfp_sampling_rate must be positive")
	}
	for i, rule := range c.Alignment.Sessions {
		if rule.Match == "" {
			return fmt.Errorf("alignment.sessions[%d].match must be set", i)
		}
		if rule.Layout == "" {
			return fmt.Errorf("alignment.sessions[%d].layout must be set", i)
		}
		if _, err := regexp.Compile(rule.Match); err != nil {
			return fmt.Errorf("alignment.sessions[%d].match: %w", i, err)
		}
	}
	for i, def := range c.Alignment.Layouts {
		if def.Name == "" {
			return fmt.Errorf("alignment.layouts[%d].name must be set", i)
		}
		if def.Base != "recording" && def.Base != "session" {
			return fmt.Errorf("alignment.layouts[%d].base must be \"recording\" or \"session\", got %q", i, def.Base)
		}
		if def.OffsetCorrection && def.FirstSampleGlob == "" {
			return fmt.Errorf("alignment.layouts[%d].first_sample_glob is required when offset_correction is enabled", i)
		}
		if def.LFPClockDivisor < 0 {
			return fmt.Errorf("alignment.layouts[%d].lfp_clock_divisor must not be negative", i)
		}
	}
	return nil
}

func (c *Config) validateLFP() error {
	if c.LFP.TemporalSubsamplingFactor < 1 {
		return errors.New("lfp.temporal_subsampling_factor must be at least 1")
	}
	for _, ch := range c.LFP.ReferenceChannels {
		if ch < 0 || float64(ch) >= c.LFP.SurfaceChannel {
			return fmt.Errorf("lfp.reference_channels: channel %d outside [0, %g)", ch, c.LFP.SurfaceChannel)
		}
	}
	return nil
}

func (c *Config) validatePublish() error {
	switch c.Publish.Driver {
	case PublishNone:
	case PublishFS:
		if c.Publish.Root == "" {
			return errors.New("publish.root must be set when publish.driver is \"fs\"")
		}
	case PublishS3:
		if c.Publish.Bucket == "" {
			return errors.New("publish.bucket must be set when publish.driver is \"s3\"")
		}
		if (c.Publish.AccessKeyID == "") != (c.Publish.SecretAccessKey == "") {
			return errors.New("publish.access_key_id and publish.secret_access_key must be set together")
		}
	default:
		return fmt.Errorf("publish.driver: unsupported value %q (want none, fs, or s3)", c.Publish.Driver)
	}
	return nil
}
