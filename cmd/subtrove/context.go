package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"subtrove/internal/config"
	"subtrove/internal/engine"
	"subtrove/internal/logging"
)

const defaultCLILogLevel = "warn"

type commandContext struct {
	configFlag   *string
	jsonFlag     *bool
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		jsonFlag:     jsonFlag,
		logLevelFlag: logLevelFlag,
	}
}

// ensureConfig loads .env files and the configuration once per invocation.
// Credentials from .env only fill variables the environment leaves unset.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		if err := loadDotEnv(path); err != nil {
			c.configErr = err
			return
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// loadDotEnv reads .env from the working directory and from beside the
// configuration file. Missing files are ignored.
func loadDotEnv(configPath string) error {
	candidates := []string{".env"}
	if configPath != "" {
		if expanded, err := config.ExpandPath(configPath); err == nil {
			candidates = append(candidates, filepath.Join(filepath.Dir(expanded), ".env"))
		}
	} else if defaultPath, err := config.DefaultConfigPath(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(defaultPath), ".env"))
	}
	for _, candidate := range candidates {
		if err := godotenv.Load(candidate); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", candidate, err)
		}
	}
	return nil
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) logLevel() string {
	if c.logLevelFlag != nil {
		if level := strings.TrimSpace(*c.logLevelFlag); level != "" {
			return level
		}
	}
	return ""
}

// logger writes console logs to stderr so command output stays parseable.
func (c *commandContext) logger() (*slog.Logger, error) {
	level := c.logLevel()
	if level == "" {
		level = defaultCLILogLevel
	}
	return logging.New(logging.Options{
		Level:       level,
		Format:      "console",
		OutputPaths: []string{"stderr"},
	})
}

// withEngine builds an engine for one command and closes it afterwards.
func (c *commandContext) withEngine(cmd *cobra.Command, fn func(*engine.Engine) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.logger()
	if err != nil {
		return err
	}
	eng, err := engine.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()
	return fn(eng)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
