package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetOutputRedirects(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	Infof("hello %s", "world")
	assert.Contains(t, buf.String(), "hello world")
}

func TestSetLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer func() {
		SetOutput(os.Stdout)
		SetLevel("info")
	}()

	SetLevel("info")
	Debugf("hidden")
	assert.NotContains(t, buf.String(), "hidden")

	SetLevel("debug")
	Debugf("shown")
	assert.Contains(t, buf.String(), "shown")

	// Unknown levels fall back to info.
	SetLevel("bogus")
	Debugf("hidden again")
	assert.NotContains(t, buf.String(), "hidden again")
}
