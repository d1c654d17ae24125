package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColorizeLevel_PassesThroughWhenDisabled(t *testing.T) {
	assert.Equal(t, "error", colorizeLevel("error", false))
}

func TestColorizeLevel_WrapsKnownLevelsWhenEnabled(t *testing.T) {
	assert.Contains(t, colorizeLevel("error", true), ansiRed)
	assert.Contains(t, colorizeLevel("warn", true), ansiYellow)
	assert.Equal(t, "info", colorizeLevel("info", true))
}

func TestIsTTY_FalseForNonFileWriter(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, isTTY(&buf))
}
