package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/chiliseed/chiliseed-cli/pkg/utils/logging"
)

func TestFrom(t *testing.T) {
	t.Run("returns default logger without value", func(t *testing.T) {
		gt.Value(t, logging.From(context.Background())).Equal(slog.Default())
	})

	t.Run("returns stored logger", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		ctx := logging.With(context.Background(), logger)

		logging.From(ctx).Info("hello", "key", "value")
		gt.String(t, buf.String()).Contains("hello")
		gt.String(t, buf.String()).Contains("key=value")
	})
}
