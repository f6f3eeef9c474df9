package main

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandlerFormatsAttrsAsBrackets(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, nil))

	logger.Info("noise correlations loaded", "module", "noise")

	out := buf.String()
	assert.Contains(t, out, "[noise]")
	assert.Contains(t, out, "noise correlations loaded")
	assert.NotContains(t, out, "INFO", "info level carries no tag")
}

func TestHandlerTagsNonInfoLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, nil))

	logger.Warn("solver failed to converge")
	assert.Contains(t, buf.String(), "[WARN]")
}

func TestHandlerHonorsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	logger.Info("should be filtered")
	assert.Empty(t, buf.String())

	logger.Error("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestHandlerWithAttrsSharesOutput(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(NewHandler(&buf, nil))
	child := base.With("module", "writer")

	child.Info("file created")
	assert.Contains(t, buf.String(), "file created")
}
