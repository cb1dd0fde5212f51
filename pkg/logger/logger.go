package logger

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

type Config struct {
	// File is the activity log path, empty disables file logging.
	File string
	// Verbosity counts -v flags: 0 warn, 1 info, 2 debug, 3+ trace.
	Verbosity int
	// MinLevel raises the level to at least this value regardless of Verbosity.
	MinLevel logrus.Level
}

var (
	prefixLen = 15
)

func Init(cfg Config) error {
	level := LevelFor(cfg.Verbosity)
	if cfg.MinLevel > level {
		level = cfg.MinLevel
	}

	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&prefixed.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		ForceFormatting: true,
	})

	if cfg.File == "" {
		return nil
	}

	hook, err := NewRotateFileHook(RotateFileConfig{
		Filename:   cfg.File,
		MaxSize:    5,
		MaxBackups: 10,
		MaxAge:     90,
		Level:      level,
		Formatter: &prefixed.TextFormatter{
			DisableColors:   true,
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			ForceFormatting: true,
		},
	})
	if err != nil {
		return errors.Wrap(err, "initialise rotating file hook")
	}

	logrus.AddHook(hook)
	return nil
}

// LevelFor maps a -v count to a logrus level.
func LevelFor(verbosity int) logrus.Level {
	switch {
	case verbosity <= 0:
		return logrus.WarnLevel
	case verbosity == 1:
		return logrus.InfoLevel
	case verbosity == 2:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

func GetLogger(prefix string) *logrus.Entry {
	if len(prefix) > prefixLen {
		prefixLen = len(prefix)
	}

	return logrus.WithFields(logrus.Fields{"prefix": prefix})
}
