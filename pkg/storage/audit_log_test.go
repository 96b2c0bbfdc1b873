package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileAuditLogAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.log")
	l, err := NewFileAuditLog(path)
	require.NoError(t, err)

	require.NoError(t, l.Append("order_submit", map[string]any{"order_id": "o1"}))
	require.NoError(t, l.Append("order_enqueue_failed", map[string]any{"order_id": "o2"}))
	require.NoError(t, l.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var events []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var entry struct {
			Timestamp string         `json:"timestamp"`
			Event     string         `json:"event"`
			Data      map[string]any `json:"data"`
		}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &entry))
		assert.NotEmpty(t, entry.Timestamp)
		events = append(events, entry.Event)
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []string{"order_submit", "order_enqueue_failed"}, events)
}

func TestNopAuditLog(t *testing.T) {
	assert.NoError(t, NopAuditLog{}.Append("x", nil))
}
