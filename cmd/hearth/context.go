package main

import (
	"strings"

	"hearth/internal/config"
)

// commandContext carries the persistent flags and resolves the API client
// lazily, so commands that never touch the daemon don't require one.
type commandContext struct {
	apiFlag    *string
	configFlag *string
}

func newCommandContext(apiFlag, configFlag *string) *commandContext {
	return &commandContext{apiFlag: apiFlag, configFlag: configFlag}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

// client resolves the daemon address from the --api flag or the config file.
func (c *commandContext) client() (*apiClient, error) {
	addr := ""
	if c.apiFlag != nil {
		addr = strings.TrimSpace(*c.apiFlag)
	}
	if addr == "" {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			return nil, err
		}
		addr = cfg.Paths.APIBind
	}
	return newAPIClient(addr), nil
}
