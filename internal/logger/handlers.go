package logger

import (
	"io"
	"log/slog"
	"time"
)

// newTextHandler creates the console handler: text format, no timestamp.
func newTextHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttr(tz, true),
	})
}

// newJSONHandler creates the file handler: JSON with RFC3339 timestamps in tz.
func newJSONHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttr(tz, false),
	})
}

func replaceAttr(tz *time.Location, dropTime bool) func(groups []string, a slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) > 0 {
			return a
		}

		switch a.Key {
		case slog.TimeKey:
			if dropTime {
				return slog.Attr{}
			}
			if t, ok := a.Value.Any().(time.Time); ok {
				return slog.String(slog.TimeKey, t.In(tz).Format(time.RFC3339))
			}
		case slog.LevelKey:
			if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= traceLevelValue {
				return slog.String(slog.LevelKey, "TRACE")
			}
		default:
			if a.Value.Kind() == slog.KindString && isSensitiveKey(a.Key) {
				return slog.String(a.Key, redactedValue)
			}
		}
		return a
	}
}
