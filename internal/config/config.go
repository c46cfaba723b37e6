package config

import (
	"context"
	"flag"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v6"

	"github.com/talx-hub/credit-ledger/internal/model"
)

type Config struct {
	RunAddr            string        `env:"RUN_ADDRESS"         envDefault:"localhost:8080"`
	DatabaseURI        string        `env:"DATABASE_URI"        envDefault:""`
	SecretKey          string        `env:"SECRET_KEY"          envDefault:""`
	LogLevel           string        `env:"LOG_LEVEL"           envDefault:"info"`
	AllocationInterval time.Duration `env:"ALLOCATION_INTERVAL" envDefault:"1h"`
	HistoryPageSize    int           `env:"HISTORY_PAGE_SIZE"   envDefault:"50"`
}

type Builder struct {
	cfg *Config
	log *slog.Logger
}

func NewBuilder(log *slog.Logger) *Builder {
	return &Builder{
		cfg: &Config{
			RunAddr:            "",
			DatabaseURI:        "",
			SecretKey:          "",
			LogLevel:           "",
			AllocationInterval: 0,
			HistoryPageSize:    0,
		},
		log: log,
	}
}

func (b *Builder) FromEnv() *Builder {
	if err := env.Parse(b.cfg); err != nil {
		b.log.LogAttrs(context.Background(),
			slog.LevelError, "Failed to parse config", slog.Any(model.KeyLoggerError, err))
	}
	return b
}

func (b *Builder) FromFlags() *Builder {
	flag.StringVar(&b.cfg.RunAddr, "a", b.cfg.RunAddr, "Run address")
	flag.StringVar(&b.cfg.DatabaseURI, "d", b.cfg.DatabaseURI, "Database URI")
	flag.StringVar(&b.cfg.SecretKey, "k", b.cfg.SecretKey, "Secret key")
	flag.StringVar(&b.cfg.LogLevel, "l", b.cfg.LogLevel, "Log level")
	flag.DurationVar(&b.cfg.AllocationInterval, "i", b.cfg.AllocationInterval,
		"Allocation scheduler tick interval")
	flag.IntVar(&b.cfg.HistoryPageSize, "p", b.cfg.HistoryPageSize,
		"Transaction history page size")

	flag.Parse()
	return b
}

func (b *Builder) GetConfig() *Config {
	if b.cfg.HistoryPageSize <= 0 {
		b.cfg.HistoryPageSize = model.DefaultHistoryPageSize
	}
	return b.cfg
}
