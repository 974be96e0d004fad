package security

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kevin07696/payment-gateway/internal/adapters/ports"
)

func TestMask(t *testing.T) {
	assert.Equal(t, "", Mask(""))
	assert.Equal(t, "****", Mask("abcd"))
	assert.Equal(t, "*******8901", Mask("12345678901"))
}

func TestRedactingLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewRedactingLogger(zap.New(core))

	l.Info("dispatching",
		ports.String("reference_id", "ref-1"),
		ports.Masked("token", "tok_abcdef"),
		ports.String("account_number", "000123456789"),
		ports.Int("status_code", 200),
		ports.Field{Key: "cause", Value: errors.New("boom")},
	)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "ref-1", fields["reference_id"])
	assert.Equal(t, "******cdef", fields["token"])
	assert.Equal(t, "********6789", fields["account_number"])
	assert.EqualValues(t, 200, fields["status_code"])
	assert.Equal(t, "boom", fields["cause"])
}
