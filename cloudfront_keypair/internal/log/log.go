package log

import (
	"io"
	"os"

	"github.com/jlefonde/crc_infra/cloudfront_keypair/internal/config"
	"github.com/rs/zerolog"
)

type Logger = zerolog.Logger

func NewLogger(cfg *config.Config) Logger {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg *config.Config, out io.Writer) Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	if cfg.LogPretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
