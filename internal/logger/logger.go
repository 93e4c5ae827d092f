package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	out    io.Writer = os.Stdout
	asJSON bool
	base   = build(out, false)
)

func build(w io.Writer, json bool) zerolog.Logger {
	if !json {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Configure sets the minimum level (debug|info|warn|error) and output format.
func Configure(level string, json bool) error {
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return fmt.Errorf("log level %q: %w", level, err)
		}
		lvl = parsed
	}
	zerolog.SetGlobalLevel(lvl)

	mu.Lock()
	asJSON = json
	base = build(out, asJSON)
	mu.Unlock()
	return nil
}

// SetOutput redirects all log output to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	base = build(out, asJSON)
	mu.Unlock()
}

func Debug(tag, msg string) {
	l := current()
	l.Debug().Str("tag", tag).Msg(msg)
}

func Info(tag, msg string) {
	l := current()
	l.Info().Str("tag", tag).Msg(msg)
}

// Success logs at info level with an ok marker.
func Success(tag, msg string) {
	l := current()
	l.Info().Str("tag", tag).Bool("ok", true).Msg(msg)
}

func Warn(tag, msg string) {
	l := current()
	l.Warn().Str("tag", tag).Msg(msg)
}

func Error(tag, msg string) {
	l := current()
	l.Error().Str("tag", tag).Msg(msg)
}

// Banner prints the startup line.
func Banner(version string) {
	if version == "" {
		version = "dev"
	}
	l := current()
	l.Info().Str("version", version).Msg("portfolio-optimizer")
}

// Section prints a heading that groups the Stats lines that follow.
func Section(title string) {
	l := current()
	l.Info().Msg("== " + title + " ==")
}

func Stats(key string, value interface{}) {
	l := current()
	l.Info().Interface(key, value).Msg("")
}

func Server(addr string) {
	l := current()
	l.Info().Str("tag", "HTTP").Str("addr", addr).Msg("Listening")
}
