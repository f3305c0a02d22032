package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunReturnsExitCodeOnBadConfig(t *testing.T) {
	t.Setenv("SENSE_EMAIL", "")
	t.Setenv("SENSE_PASSWORD", "")
	t.Setenv("CONFIG_FILE", "")

	assert.Equal(t, 1, run())
}
