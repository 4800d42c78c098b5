package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext_Default(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestWith_CollectsFields(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	root := WithLogger(context.Background(), base)
	inner := With(root, "user_id", "u-1")
	FromContext(inner).Info("hello")

	assert.Contains(t, buf.String(), "user_id=u-1")
	// fields are visible through the outer context too
	assert.Equal(t, []any{"user_id", "u-1"}, Fields(root))
}

func TestWith_WithoutLogger(t *testing.T) {
	ctx := With(context.Background(), "k", "v")

	assert.NotNil(t, FromContext(ctx))
	assert.Nil(t, Fields(ctx))
}
