package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"npprobes/internal/config"
	"npprobes/internal/logging"
	"npprobes/internal/probepaths"
	"npprobes/internal/services"
	"npprobes/internal/session"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool
	executor   services.Executor

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(configFlag *string, jsonFlag *bool, executor services.Executor) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
		executor:   executor,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// loggerValue returns the configured logger, falling back to a no-op logger
// when the log destination cannot be opened.
func (c *commandContext) loggerValue() *slog.Logger {
	c.loggerOnce.Do(func() {
		logger, err := logging.NewFromConfig(c.config)
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// resolveSession loads the config and resolves a session id or directory.
func (c *commandContext) resolveSession(arg string) (*config.Config, *session.Session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	s, err := session.Resolve(cfg, arg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, s, nil
}

// sessionProbes resolves a session and its probes, limited to letters when
// any are given.
func (c *commandContext) sessionProbes(arg string, letters []string) (*config.Config, *session.Session, []probepaths.Probe, error) {
	cfg, s, err := c.resolveSession(arg)
	if err != nil {
		return nil, nil, nil, err
	}
	probes, err := probepaths.Discover(s.Root)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, s, probepaths.Filter(probes, normalizeLetters(letters)), nil
}

// normalizeLetters accepts "A", "probeA" or "a" spellings.
func normalizeLetters(letters []string) []string {
	out := make([]string, 0, len(letters))
	for _, l := range letters {
		l = strings.TrimSpace(l)
		l = strings.TrimPrefix(strings.TrimPrefix(l, "probe"), "Probe")
		if l == "" {
			continue
		}
		out = append(out, strings.ToUpper(l))
	}
	return out
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
