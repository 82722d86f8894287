package logging

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileHookWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	hook, err := NewFileHook(path, logrus.InfoLevel)
	require.NoError(t, err)

	log := logrus.New()
	log.Out = &bytes.Buffer{}
	log.Level = logrus.DebugLevel
	log.Hooks.Add(hook)

	log.WithField("module", "test").Info("hello")
	log.WithField("module", "test").Debug("dropped")
	require.NoError(t, hook.Close())

	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"module":"test"`)
	assert.NotContains(t, string(data), "dropped")
}
