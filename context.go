package main

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/soocke/score-split-go/config"
	"github.com/soocke/score-split-go/domain/recognize"
	"github.com/soocke/score-split-go/domain/recognize/tesseract"
)

type commandContext struct {
	configFlag *string
	splitsFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
	logger     *slog.Logger
}

func newCommandContext(configFlag, splitsFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, splitsFlag: splitsFlag}
}

func (c *commandContext) configPath() string {
	if c.configFlag != nil {
		if p := strings.TrimSpace(*c.configFlag); p != "" {
			return p
		}
	}
	return config.DefaultPath()
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if c.splitsFlag != nil && strings.TrimSpace(*c.splitsFlag) != "" {
			cfg.SplitsPath = strings.TrimSpace(*c.splitsFlag)
		}
		c.config = cfg
		c.logger = NewLogger(parseLevel(cfg.LogLevel, cfg.Debug), cfg.LogFormat, os.Stderr)
	})
	return c.config, c.configErr
}

func (c *commandContext) log() *slog.Logger {
	if _, err := c.ensureConfig(); err != nil || c.logger == nil {
		return NewLogger(slog.LevelInfo, "", os.Stderr)
	}
	return c.logger
}

// newRecognizer builds the tesseract engine from cfg.
func newRecognizer(cfg *config.Config, logger *slog.Logger) (recognize.Recognizer, error) {
	engine, err := tesseract.New(tesseract.Options{
		TessdataPrefix: cfg.TessdataPrefix,
		Language:       cfg.OCRLanguage,
		Whitelist:      cfg.OCRWhitelist,
		MinConfidence:  cfg.OCRMinConfidence,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	return engine, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
