package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"harmony/internal/config"
	"harmony/internal/logging"
	"harmony/internal/services/audiobookshelf"
	"harmony/internal/store"
)

// defaultEnvFiles are loaded when present. Variables already set in the
// environment win.
var defaultEnvFiles = []string{".env", ".env.harmony"}

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	envFile    string
}

// commandContext lazily loads the environment, configuration and logger
// once per invocation.
type commandContext struct {
	flags globalFlags

	envOnce sync.Once
	envErr  error

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func (c *commandContext) loadEnv() error {
	c.envOnce.Do(func() {
		for _, name := range defaultEnvFiles {
			if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
				c.envErr = fmt.Errorf("load %s: %w", name, err)
				return
			}
		}
		path := strings.TrimSpace(c.flags.envFile)
		if path == "" {
			return
		}
		expanded, err := config.ExpandPath(path)
		if err != nil {
			c.envErr = fmt.Errorf("resolve env file: %w", err)
			return
		}
		if err := godotenv.Load(expanded); err != nil {
			c.envErr = fmt.Errorf("load env file %s: %w", expanded, err)
		}
	})
	return c.envErr
}

func (c *commandContext) configPath() string {
	return strings.TrimSpace(c.flags.configPath)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err == nil {
			err = cfg.EnsureDirectories()
		}
		c.config, c.configErr = cfg, err
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

// withStore opens the cache database for the duration of fn.
func (c *commandContext) withStore(fn func(*store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer st.Close()
	return fn(st)
}

func (c *commandContext) libraryClient() (*audiobookshelf.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	return audiobookshelf.NewFromConfig(cfg, logger), nil
}

// skipConfigLoad marks commands that must run without a valid config.
const skipConfigLoad = "skipConfigLoad"

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[skipConfigLoad] == "true" {
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

// isTerminal reports whether stream is an interactive terminal. Buffers
// and pipes are not.
func isTerminal(stream any) bool {
	file, ok := stream.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
