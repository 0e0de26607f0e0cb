package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	t.Run("Should write a message to the configured output", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(Config{Level: InfoLevel, Output: &buf})
		l.Info("hello", "key", "value")
		assert.Contains(t, buf.String(), "hello")
		assert.Contains(t, buf.String(), "value")
	})

	t.Run("Should drop info lines below the configured level", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(Config{Level: WarnLevel, Output: &buf})
		l.Info("should not appear")
		l.Warn("should appear")
		assert.False(t, strings.Contains(buf.String(), "should not appear"))
		assert.True(t, strings.Contains(buf.String(), "should appear"))
	})

	t.Run("Should emit JSON when configured", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(Config{Level: InfoLevel, Output: &buf, JSON: true})
		l.Info("hello")
		assert.True(t, strings.HasPrefix(strings.TrimSpace(buf.String()), "{"))
	})
}

func TestLogger_With(t *testing.T) {
	t.Run("Should carry forward fields onto every subsequent line", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(Config{Level: InfoLevel, Output: &buf}).With("component", "test")
		l.Info("hello")
		assert.Contains(t, buf.String(), "component")
		assert.Contains(t, buf.String(), "test")
	})
}

func TestContextWithLogger(t *testing.T) {
	t.Run("Should return the attached logger, falling back to the default when absent", func(t *testing.T) {
		var buf bytes.Buffer
		custom := New(Config{Level: InfoLevel, Output: &buf})
		ctx := ContextWithLogger(context.Background(), custom)

		assert.Same(t, custom, FromContext(ctx))
		assert.Same(t, GetDefault(), FromContext(context.Background()))
	})
}
