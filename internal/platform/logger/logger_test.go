package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("json respects the level", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := New("warn", "json", &buf)
		require.NoError(t, err)

		log.Info("dropped")
		log.Warn("kept", "verification_id", "v1")

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "kept", line["msg"])
		assert.Equal(t, "v1", line["verification_id"])
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := New("", "text", &buf)
		require.NoError(t, err)
		log.Info("hello")
		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := New("info", "xml", nil)
		assert.Error(t, err)
	})
}
