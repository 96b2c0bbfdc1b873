package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditLog records gateway events, one JSON object per line.
type AuditLog interface {
	Append(event string, data map[string]any) error
}

type NopAuditLog struct{}

func (NopAuditLog) Append(string, map[string]any) error { return nil }

type FileAuditLog struct {
	mu  sync.Mutex
	f   *os.File
	now func() time.Time
}

func NewFileAuditLog(path string) (*FileAuditLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileAuditLog{f: f, now: time.Now}, nil
}

func (l *FileAuditLog) Append(event string, data map[string]any) error {
	line, err := json.Marshal(map[string]any{
		"timestamp": l.now().UTC().Format(time.RFC3339Nano),
		"event":     event,
		"data":      data,
	})
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = fmt.Fprintln(l.f, string(line))
	return err
}

func (l *FileAuditLog) Close() error { return l.f.Close() }

var _ AuditLog = NopAuditLog{}
var _ AuditLog = (*FileAuditLog)(nil)
