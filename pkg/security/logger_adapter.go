// Package security bridges the provider adapters' logger port to zap with
// masking of credentials and account numbers.
package security

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kevin07696/payment-gateway/internal/adapters/ports"
)

// sensitiveKeys are masked even when the caller forgot ports.Masked
var sensitiveKeys = map[string]bool{
	"api_key":        true,
	"aes_key":        true,
	"iv":             true,
	"secret":         true,
	"account_number": true,
	"vpa":            true,
}

// RedactingLogger writes ports.Logger calls to zap
type RedactingLogger struct {
	logger *zap.Logger
}

// NewRedactingLogger wraps logger
func NewRedactingLogger(logger *zap.Logger) *RedactingLogger {
	return &RedactingLogger{logger: logger}
}

var _ ports.Logger = (*RedactingLogger)(nil)

func (l *RedactingLogger) Debug(msg string, fields ...ports.Field) {
	l.logger.Debug(msg, toZap(fields)...)
}

func (l *RedactingLogger) Info(msg string, fields ...ports.Field) {
	l.logger.Info(msg, toZap(fields)...)
}

func (l *RedactingLogger) Warn(msg string, fields ...ports.Field) {
	l.logger.Warn(msg, toZap(fields)...)
}

func (l *RedactingLogger) Error(msg string, fields ...ports.Field) {
	l.logger.Error(msg, toZap(fields)...)
}

func toZap(fields []ports.Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		if f.Sensitive || sensitiveKeys[strings.ToLower(f.Key)] {
			out[i] = zap.String(f.Key, Mask(fmt.Sprint(f.Value)))
			continue
		}
		if err, ok := f.Value.(error); ok {
			out[i] = zap.NamedError(f.Key, err)
			continue
		}
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}

// Mask hides all but the last four characters of s. Values of four
// characters or fewer are hidden entirely.
func Mask(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
