// Package logging builds the zap logger shared by the CLI, the agent loop,
// the tool executor and the verification gate.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects level, encoding and an optional file sink.
type Options struct {
	Level    string // debug, info, warn, error
	Encoding string // console or json
	File     string // appended to alongside stderr when set
}

// New builds a production-style logger. Output goes to stderr so that it
// never interleaves with the conversation printed on stdout.
func New(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()

	level := zapcore.WarnLevel
	if opts.Level != "" {
		l, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = l
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	switch opts.Encoding {
	case "", "console":
		cfg.Encoding = "console"
	case "json":
		cfg.Encoding = "json"
	default:
		return nil, fmt.Errorf("unknown log encoding %q", opts.Encoding)
	}

	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if opts.File != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, opts.File)
		cfg.ErrorOutputPaths = append(cfg.ErrorOutputPaths, opts.File)
	}

	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.Sampling = nil

	return cfg.Build()
}
