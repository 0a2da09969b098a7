package avdecode

import (
	"context"
	"strings"

	"github.com/asticode/go-astiav"
	"github.com/facebookincubator/go-belt/tool/logger"
)

// logLevelTrace is AV_LOG_TRACE, which astiav has no constant for.
const logLevelTrace = astiav.LogLevel(56)

func logLevelToAstiav(l logger.Level) astiav.LogLevel {
	switch l {
	case logger.LevelTrace:
		return logLevelTrace
	case logger.LevelDebug:
		return astiav.LogLevelDebug
	case logger.LevelInfo:
		return astiav.LogLevelInfo
	case logger.LevelWarning:
		return astiav.LogLevelWarning
	case logger.LevelError:
		return astiav.LogLevelError
	case logger.LevelPanic:
		return astiav.LogLevelPanic
	case logger.LevelFatal:
		return astiav.LogLevelFatal
	default:
		return astiav.LogLevelQuiet
	}
}

func logLevelFromAstiav(l astiav.LogLevel) logger.Level {
	switch {
	case l <= astiav.LogLevelQuiet:
		return logger.LevelUndefined
	case l <= astiav.LogLevelPanic:
		return logger.LevelPanic
	case l <= astiav.LogLevelFatal:
		return logger.LevelFatal
	case l <= astiav.LogLevelError:
		return logger.LevelError
	case l <= astiav.LogLevelWarning:
		return logger.LevelWarning
	case l <= astiav.LogLevelInfo:
		return logger.LevelInfo
	case l <= astiav.LogLevelDebug:
		// libav's verbose and debug output is very chatty.
		return logger.LevelDebug
	default:
		return logger.LevelTrace
	}
}

// SetupLogging routes libav's log output to the logger in ctx.
func SetupLogging(ctx context.Context) {
	l := logger.FromCtx(ctx)
	astiav.SetLogLevel(logLevelToAstiav(l.Level()))
	astiav.SetLogCallback(func(c astiav.Classer, level astiav.LogLevel, fmt, msg string) {
		var cs string
		if c != nil {
			if cl := c.Class(); cl != nil {
				cs = " - class: " + cl.String()
			}
		}
		l.Logf(logLevelFromAstiav(level), "%s%s", strings.TrimSpace(msg), cs)
	})
}
