package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionCmd_Use(t *testing.T) {
	assert.Equal(t, "version", versionCmd.Use)
}

func TestVersionCmd_Short(t *testing.T) {
	assert.Equal(t, "Print the version number", versionCmd.Short)
}

func TestVersionCmd_Executes(t *testing.T) {
	originalVersion := version
	SetVersion("test-version-1.0.0")
	defer func() { version = originalVersion }()

	out, err := execute("version")

	assert.NoError(t, err)
	assert.Contains(t, out, "sercha-rag version test-version-1.0.0")
}

func TestVersionCmd_DisplaysDevByDefault(t *testing.T) {
	originalVersion := version
	version = "dev"
	defer func() { version = originalVersion }()

	out, err := execute("version")

	assert.NoError(t, err)
	assert.Contains(t, out, "sercha-rag version dev")
}

func TestVersionCmd_NeedsNoRuntime(t *testing.T) {
	rtMu.Lock()
	oldRT, oldBootstrap := rt, bootstrap
	rt, bootstrap = nil, nil
	rtMu.Unlock()
	defer func() {
		rtMu.Lock()
		rt, bootstrap = oldRT, oldBootstrap
		rtMu.Unlock()
	}()

	_, err := execute("version")

	assert.NoError(t, err)
}
