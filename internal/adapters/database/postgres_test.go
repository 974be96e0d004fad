package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestPoolPressure(t *testing.T) {
	tests := []struct {
		name     string
		acquired int32
		max      int32
		level    zapcore.Level
		percent  float64
	}{
		{"idle pool", 0, 25, zapcore.DebugLevel, 0},
		{"busy but fine", 20, 25, zapcore.DebugLevel, 80},
		{"highly utilized", 21, 25, zapcore.WarnLevel, 84},
		{"near exhaustion", 25, 25, zapcore.ErrorLevel, 100},
		{"unsized pool", 3, 0, zapcore.DebugLevel, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			percent, level := poolPressure(tt.acquired, tt.max)
			assert.Equal(t, tt.level, level)
			assert.InDelta(t, tt.percent, percent, 0.001)
		})
	}
}
