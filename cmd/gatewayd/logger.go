package main

import (
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

func newLogger(level string, development bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = lvl
	}
	return cfg.Build()
}

// loggerFor prefers the global flags over the configured values.
func loggerFor(c *cli.Context, level string, development bool) (*zap.Logger, error) {
	if l := c.GlobalString("log-level"); l != "" {
		level = l
	}
	return newLogger(level, development || c.GlobalBool("dev"))
}
