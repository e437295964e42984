package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where log output goes. By default everything is written to
// a rotating debug.log inside the data directory; PrintToConsole mirrors the
// original daemon behaviour of writing to stdout instead.
type Options struct {
	PrintToConsole bool
	FilePath       string
	Debug          bool
}

// Sink is the rotating file writer backing the node log. It is retained so
// the supervisor can rotate the file on SIGHUP.
type Sink struct {
	file *lumberjack.Logger
}

// Rotate closes and reopens the underlying log file. Safe to call with a
// console-only sink.
func (s *Sink) Rotate() error {
	if s == nil || s.file == nil {
		return nil
	}
	return s.file.Rotate()
}

// Close releases the file handle, if any.
func (s *Sink) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	return s.file.Close()
}

// Setup configures the process-wide logger to emit structured JSON and
// returns the slog.Logger together with the file sink (nil-safe). All lines
// carry the service name and environment when provided.
func Setup(service, env string, opts Options) (*slog.Logger, *Sink) {
	sink := &Sink{}
	var out io.Writer = os.Stdout
	if !opts.PrintToConsole && strings.TrimSpace(opts.FilePath) != "" {
		sink.file = &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    16, // megabytes
			MaxBackups: 2,
		}
		out = sink.file
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			}
			if attr.Key == slog.LevelKey {
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			}
			if attr.Key == slog.MessageKey {
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	})

	attrs := []slog.Attr{
		slog.String("service", strings.TrimSpace(service)),
	}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	withArgs := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		withArgs = append(withArgs, attr)
	}

	base := slog.New(handler).With(withArgs...)
	slog.SetDefault(base)

	// Bridge the standard library logger so dependencies keep working.
	stdBridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base, sink
}
