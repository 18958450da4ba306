package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/granobox/spool/internal/client"
	"github.com/granobox/spool/internal/config"
	"github.com/granobox/spool/internal/logging"
)

type commandContext struct {
	configFlag *string
	addrFlag   *string
	tokenFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, addrFlag, tokenFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		addrFlag:   addrFlag,
		tokenFlag:  tokenFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		if path == "" {
			path = os.Getenv("SPOOL_CONFIG")
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		cfg.ApplyEnv()
		if err := cfg.Validate(); err != nil {
			c.configErr = fmt.Errorf("invalid config: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() (*zap.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
}

func (c *commandContext) baseURL() string {
	if c.addrFlag != nil && strings.TrimSpace(*c.addrFlag) != "" {
		return strings.TrimSpace(*c.addrFlag)
	}
	port := config.Default().Server.Port
	if cfg, err := c.ensureConfig(); err == nil {
		port = cfg.Server.Port
	}
	return fmt.Sprintf("http://localhost:%d", port)
}

func (c *commandContext) client() *client.Client {
	token := ""
	if c.tokenFlag != nil {
		token = strings.TrimSpace(*c.tokenFlag)
	}
	if token == "" {
		token = os.Getenv("SPOOL_TOKEN")
	}
	return client.New(c.baseURL(), token)
}
