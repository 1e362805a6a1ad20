package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeRegistry(); err != nil {
		return err
	}
	c.normalizeAlignment()
	c.normalizeLFP()
	c.normalizePackaging()
	if err := c.normalizePublish(); err != nil {
		return err
	}
	if err := c.normalizeMetrics(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	roots := make([]string, 0, len(c.Paths.SessionRoots))
	seen := make(map[string]struct{}, len(c.Paths.SessionRoots))
	for _, root := range c.Paths.SessionRoots {
		if strings.TrimSpace(root) == "" {
			continue
		}
		expanded, err := expandPath(strings.TrimSpace(root))
		if err != nil {
			return fmt.Errorf("paths.session_roots: %w", err)
		}
		if _, dup := seen[expanded]; dup {
			continue
		}
		seen[expanded] = struct{}{}
		roots = append(roots, expanded)
	}
	c.Paths.SessionRoots = roots

	var err error
	if c.Paths.DatajointRoot, err = expandPath(strings.TrimSpace(c.Paths.DatajointRoot)); err != nil {
		return fmt.Errorf("paths.datajoint_root: %w", err)
	}
	if c.Paths.TissuecyteRoot, err = expandPath(strings.TrimSpace(c.Paths.TissuecyteRoot)); err != nil {
		return fmt.Errorf("paths.tissuecyte_root: %w", err)
	}
	if c.Paths.AnnotationVolume, err = expandPath(strings.TrimSpace(c.Paths.AnnotationVolume)); err != nil {
		return fmt.Errorf("paths.annotation_volume: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.OutputSubdir = strings.Trim(strings.TrimSpace(c.Paths.OutputSubdir), "/")
	if c.Paths.OutputSubdir == "" {
		c.Paths.OutputSubdir = defaultOutputSubdir
	}
	return nil
}

func (c *Config) normalizeRegistry() error {
	c.Registry.Mode = strings.ToLower(strings.TrimSpace(c.Registry.Mode))
	if c.Registry.Mode == "" {
		c.Registry.Mode = RegistryFile
	}
	var err error
	if c.Registry.Path, err = expandPath(strings.TrimSpace(c.Registry.Path)); err != nil {
		return fmt.Errorf("registry.path: %w", err)
	}
	if strings.TrimSpace(c.Registry.SQLitePath) == "" {
		c.Registry.SQLitePath = defaultRegistrySQLitePath
	}
	if c.Registry.SQLitePath, err = expandPath(strings.TrimSpace(c.Registry.SQLitePath)); err != nil {
		return fmt.Errorf("registry.sqlite_path: %w", err)
	}
	c.Registry.DSN = strings.TrimSpace(c.Registry.DSN)
	if c.Registry.DSN == "" {
		if value, ok := os.LookupEnv("NPPROBES_REGISTRY_DSN"); ok {
			c.Registry.DSN = strings.TrimSpace(value)
		}
	}
	if c.Registry.LockTimeoutSeconds <= 0 {
		c.Registry.LockTimeoutSeconds = defaultLockTimeout
	}
	return nil
}

func (c *Config) normalizeAlignment() {
	command := make([]string, 0, len(c.Alignment.Command))
	for _, arg := range c.Alignment.Command {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			command = append(command, trimmed)
		}
	}
	if len(command) == 0 {
		command = defaultAlignCommand()
	}
	c.Alignment.Command = command
	if c.Alignment.TimeoutSeconds <= 0 {
		c.Alignment.TimeoutSeconds = defaultAlignTimeout
	}
	if c.Alignment.APSamplingRate == 0 {
		c.Alignment.APSamplingRate = defaultAPSamplingRate
	}
	if c.Alignment.LFPSamplingRate == 0 {
		c.Alignment.LFPSamplingRate = defaultLFPSamplingRate
	}
	for i := range c.Alignment.Sessions {
		c.Alignment.Sessions[i].Match = strings.TrimSpace(c.Alignment.Sessions[i].Match)
		c.Alignment.Sessions[i].Layout = strings.ToLower(strings.TrimSpace(c.Alignment.Sessions[i].Layout))
	}
	for i := range c.Alignment.Layouts {
		def := &c.Alignment.Layouts[i]
		def.Name = strings.ToLower(strings.TrimSpace(def.Name))
		def.Base = strings.ToLower(strings.TrimSpace(def.Base))
		if def.Base == "" {
			def.Base = "recording"
		}
	}
}

func (c *Config) normalizeLFP() {
	if c.LFP.TemporalSubsamplingFactor == 0 {
		c.LFP.TemporalSubsamplingFactor = defaultSubsamplingFactor
	}
	if c.LFP.SurfaceChannel == 0 {
		c.LFP.SurfaceChannel = defaultSurfaceChannel
	}
	if len(c.LFP.ReferenceChannels) == 0 {
		c.LFP.ReferenceChannels = []int{defaultReferenceChannel}
	}
}

func (c *Config) normalizePackaging() {
	c.Packaging.Description = strings.TrimSpace(c.Packaging.Description)
	if c.Packaging.Description == "" {
		c.Packaging.Description = defaultDescription
	}
	c.Packaging.ContainerName = strings.TrimSpace(c.Packaging.ContainerName)
	if c.Packaging.ContainerName == "" {
		c.Packaging.ContainerName = defaultContainerName
	}
	command := make([]string, 0, len(c.Packaging.NWBCommand))
	for _, arg := range c.Packaging.NWBCommand {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			command = append(command, trimmed)
		}
	}
	c.Packaging.NWBCommand = command
	if c.Packaging.TimeoutSeconds <= 0 {
		c.Packaging.TimeoutSeconds = defaultPackagingTimeout
	}
}

func (c *Config) normalizePublish() error {
	c.Publish.Driver = strings.ToLower(strings.TrimSpace(c.Publish.Driver))
	if c.Publish.Driver == "" {
		c.Publish.Driver = PublishNone
	}
	var err error
	if c.Publish.Root, err = expandPath(strings.TrimSpace(c.Publish.Root)); err != nil {
		return fmt.Errorf("publish.root: %w", err)
	}
	c.Publish.Bucket = strings.TrimSpace(c.Publish.Bucket)
	c.Publish.Endpoint = strings.TrimSpace(c.Publish.Endpoint)
	c.Publish.Prefix = strings.Trim(strings.TrimSpace(c.Publish.Prefix), "/")
	c.Publish.Region = strings.TrimSpace(c.Publish.Region)
	if c.Publish.Region == "" {
		c.Publish.Region = defaultS3Region
	}
	return nil
}

func (c *Config) normalizeMetrics() error {
	var err error
	if c.Metrics.Textfile, err = expandPath(strings.TrimSpace(c.Metrics.Textfile)); err != nil {
		return fmt.Errorf("metrics.textfile: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
