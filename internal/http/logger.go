package http

import (
	"errors"
	"fmt"

	"github.com/fivetwenty-io/helix/pkg/helix"
	"github.com/hashicorp/go-retryablehttp"
)

// ErrRelativeURL is returned when a request path cannot be resolved to an absolute URL.
var ErrRelativeURL = errors.New("request URL is not absolute")

var _ retryablehttp.LeveledLogger = (*leveledLogger)(nil)

// leveledLogger forwards retryablehttp's key/value logging to a helix.Logger.
// Debug and Info lines are only forwarded in debug mode.
type leveledLogger struct {
	logger helix.Logger
	debug  bool
}

func newLeveledLogger(logger helix.Logger, debug bool) interface{} {
	if logger == nil {
		return nil
	}

	return &leveledLogger{logger: logger, debug: debug}
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, toFields(keysAndValues))
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(msg, toFields(keysAndValues))
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	if l.debug {
		l.logger.Info(msg, toFields(keysAndValues))
	}
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	if l.debug {
		l.logger.Debug(msg, toFields(keysAndValues))
	}
}

func toFields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)

	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}

		value := keysAndValues[i+1]
		if err, isErr := value.(error); isErr {
			value = err.Error()
		}

		fields[key] = value
	}

	if len(keysAndValues)%2 == 1 {
		fields["extra"] = keysAndValues[len(keysAndValues)-1]
	}

	return fields
}
