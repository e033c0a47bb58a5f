package plugin

import (
	"log/slog"
	"testing"
	"time"
)

func TestLogBuffer(t *testing.T) {
	t.Run("Add and GetAll", func(t *testing.T) {
		buf := NewLogBuffer(10)

		buf.Log("test-plugin", "info", "test message 1", nil)
		buf.Log("test-plugin", "error", "test message 2", map[string]any{"key": "value"})

		entries := buf.GetAll()
		if len(entries) != 2 {
			t.Errorf("expected 2 entries, got %d", len(entries))
		}

		// Newest first
		if entries[0].Message != "test message 2" {
			t.Errorf("expected newest first, got %s", entries[0].Message)
		}
		if entries[0].Level != "error" {
			t.Errorf("expected error level, got %s", entries[0].Level)
		}
	})

	t.Run("Ring buffer overflow", func(t *testing.T) {
		buf := NewLogBuffer(3)

		buf.Log("p1", "info", "msg1", nil)
		buf.Log("p1", "info", "msg2", nil)
		buf.Log("p1", "info", "msg3", nil)
		buf.Log("p1", "info", "msg4", nil) // overwrites msg1

		entries := buf.GetAll()
		if len(entries) != 3 {
			t.Errorf("expected 3 entries, got %d", len(entries))
		}
		for _, e := range entries {
			if e.Message == "msg1" {
				t.Error("msg1 should have been overwritten")
			}
		}
	})

	t.Run("GetByPlugin", func(t *testing.T) {
		buf := NewLogBuffer(10)

		buf.Log("plugin-a", "info", "msg from a", nil)
		buf.Log("plugin-b", "info", "msg from b", nil)
		buf.Log("plugin-a", "error", "error from a", nil)

		entries := buf.GetByPlugin("plugin-a")
		if len(entries) != 2 {
			t.Errorf("expected 2 entries for plugin-a, got %d", len(entries))
		}
	})

	t.Run("GetByLevel", func(t *testing.T) {
		buf := NewLogBuffer(10)

		buf.Log("p1", "debug", "debug msg", nil)
		buf.Log("p1", "info", "info msg", nil)
		buf.Log("p1", "warn", "warn msg", nil)
		buf.Log("p1", "error", "error msg", nil)

		if got := len(buf.GetByLevel("warn")); got != 2 {
			t.Errorf("expected 2 entries (warn+error), got %d", got)
		}
		if got := len(buf.GetByLevel("error")); got != 1 {
			t.Errorf("expected 1 entry (error), got %d", got)
		}
	})

	t.Run("GetRecent", func(t *testing.T) {
		buf := NewLogBuffer(10)
		for i := 0; i < 5; i++ {
			buf.Log("p1", "info", "msg", nil)
		}

		if got := len(buf.GetRecent(3)); got != 3 {
			t.Errorf("expected 3 entries, got %d", got)
		}
		if got := len(buf.GetRecent(100)); got != 5 {
			t.Errorf("expected 5 entries, got %d", got)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		buf := NewLogBuffer(10)
		buf.Log("p1", "info", "msg", nil)
		buf.Log("p1", "info", "msg", nil)
		buf.Clear()

		if buf.Count() != 0 {
			t.Errorf("expected 0 after clear, got %d", buf.Count())
		}
	})

	t.Run("Timestamp", func(t *testing.T) {
		buf := NewLogBuffer(10)

		before := time.Now()
		buf.Log("p1", "info", "msg", nil)
		after := time.Now()

		entries := buf.GetAll()
		if entries[0].Timestamp.Before(before) || entries[0].Timestamp.After(after) {
			t.Error("timestamp out of range")
		}
	})
}

func TestNewLogBufferInvalidSize(t *testing.T) {
	if buf := NewLogBuffer(0); buf.maxSize != 1000 {
		t.Errorf("expected default 1000, got %d", buf.maxSize)
	}
	if buf := NewLogBuffer(-5); buf.maxSize != 1000 {
		t.Errorf("expected default 1000, got %d", buf.maxSize)
	}
}

func TestBufferHandler(t *testing.T) {
	buf := NewLogBuffer(10)
	logger := slog.New(NewBufferHandler(buf, nil, slog.LevelInfo))

	logger.Debug("dropped")
	logger.Warn("conflict", "plugin", "alpha", "module", "example.com/alpha")
	logger.With("scope", "local").Error("write failed", "path", "/tmp/x")

	entries := buf.GetAll()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].Plugin != "alpha" || entries[1].Level != "warn" {
		t.Errorf("unexpected entry %+v", entries[1])
	}
	if entries[1].Fields["module"] != "example.com/alpha" {
		t.Errorf("expected module field, got %v", entries[1].Fields)
	}
	if entries[0].Fields["scope"] != "local" || entries[0].Fields["path"] != "/tmp/x" {
		t.Errorf("expected scope and path fields, got %v", entries[0].Fields)
	}
	if !buf.Contains("error", "write failed") {
		t.Error("Contains should find the error entry")
	}
}
