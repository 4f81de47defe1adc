package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithDebug(), WithFormat("text"), WithWriter(&buf))

	l.Info("hello", "k", "v")
	l.Warn("careful")
	l.Error("boom")
	l.Debug("detail")

	out := buf.String()
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "careful")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "detail")
	assert.Contains(t, out, `k=v`)
}

func TestLogger_QuietSuppressesConsole(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithWriter(&buf), WithQuiet())
	l.Info("should not appear")
	assert.Empty(t, buf.String())
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithWriter(&buf))
	ctx := WithContext(context.Background(), l)

	Info(ctx, "via context")
	assert.True(t, strings.Contains(buf.String(), "via context"))
}

func TestFromContextDefaultsWhenAbsent(t *testing.T) {
	got := FromContext(context.Background())
	assert.NotNil(t, got)
}
