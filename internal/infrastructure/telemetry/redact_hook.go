// Package telemetry wires structured logging concerns that must never leak
// secret material: a logrus hook that redacts sensitive fields before any
// entry reaches a sink.
package telemetry

import (
	"github.com/sirupsen/logrus"
)

// sensitiveFields lists the logrus field names that must never reach an
// exported log sink in cleartext: signing material and the LN payment
// preimage/invite payloads that double as bearer credentials.
var sensitiveFields = map[string]struct{}{
	"preimage":    {},
	"sk":          {},
	"signing_key": {},
	"invite":      {},
}

const redactedValue = "[redacted]"

// RedactHook strips sensitive field values from every log.Entry before it
// is formatted, regardless of which formatter or output the logger is
// otherwise configured with.
type RedactHook struct{}

// NewRedactHook returns a hook that redacts sensitiveFields on every level.
func NewRedactHook() *RedactHook {
	return &RedactHook{}
}

func (h *RedactHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *RedactHook) Fire(e *logrus.Entry) error {
	for k := range e.Data {
		if _, sensitive := sensitiveFields[k]; sensitive {
			e.Data[k] = redactedValue
		}
	}
	return nil
}
