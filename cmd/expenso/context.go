package main

import (
	"context"
	"strings"
	"sync"

	"github.com/akovalev/expenso/internal/config"
	"github.com/akovalev/expenso/internal/store"
	bqstore "github.com/akovalev/expenso/internal/store/bigquery"
	"github.com/akovalev/expenso/internal/store/sqlite"
)

type commandContext struct {
	configFlag *string
	userFlag   *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, userFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		userFlag:   userFlag,
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
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) userID() string {
	if c.userFlag == nil || strings.TrimSpace(*c.userFlag) == "" {
		return "local"
	}
	return strings.TrimSpace(*c.userFlag)
}

// openStore opens the configured persistence backend and seeds defaults for
// the CLI user. The caller owns the returned handle.
func (c *commandContext) openStore(ctx context.Context) (store.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	var st store.Store
	switch cfg.Store.Backend {
	case "bigquery":
		st, err = bqstore.New(ctx, cfg.Store.Project, cfg.Store.Dataset)
	default:
		st, err = sqlite.Open(cfg.Store.Path)
	}
	if err != nil {
		return nil, err
	}

	if err := st.EnsureDefaults(ctx, c.userID()); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}
