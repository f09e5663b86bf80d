package logging

import (
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
)

func TestLevelFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		debug    string
		logLevel string
		want     hclog.Level
	}{
		{"defaults to info", "", "", hclog.Info},
		{"debug flag wins", "true", "error", hclog.Debug},
		{"debug flag numeric", "1", "", hclog.Debug},
		{"log level warn", "", "warn", hclog.Warn},
		{"log level warning alias", "", "WARNING", hclog.Warn},
		{"log level error", "", "error", hclog.Error},
		{"unknown level", "", "chatty", hclog.Info},
		{"falsy debug ignored", "no", "debug", hclog.Debug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DEBUG", tt.debug)
			t.Setenv("LOG_LEVEL", tt.logLevel)
			assert.Equal(t, tt.want, LevelFromEnv())
		})
	}
}

func TestSetupExplicitLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")

	l := Setup("debug", false)
	assert.True(t, l.IsDebug())
	assert.Same(t, l, Root())

	l = Setup("", false)
	assert.False(t, l.IsWarn())
	assert.True(t, l.IsError())
}

func TestSetLevelIgnoresGarbage(t *testing.T) {
	Setup("info", false)
	SetLevel("nonsense")
	assert.True(t, Root().IsInfo())

	SetLevel("warn")
	assert.False(t, Root().IsInfo())
	assert.True(t, Root().IsWarn())
}

func TestOrNull(t *testing.T) {
	assert.NotNil(t, OrNull(nil))

	l := hclog.NewNullLogger()
	assert.Same(t, l, OrNull(l))
}
