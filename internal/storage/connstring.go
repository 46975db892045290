package storage

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// SQLiteConnString builds a SQLite connection string with standard
// pragmas: busy_timeout (prevents "database is locked" under
// concurrency), foreign_keys, and WAL journaling for file databases.
// Honors the WEFT_LOCK_TIMEOUT env var for the busy timeout
// (default 30s). If path is already a file: URI, pragmas are appended
// only when absent.
func SQLiteConnString(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}

	busy := 30 * time.Second
	if v := strings.TrimSpace(os.Getenv("WEFT_LOCK_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			busy = d
		}
	}
	busyMs := int64(busy / time.Millisecond)

	if path == ":memory:" {
		// Shared in-memory database so multiple pooled connections see
		// the same data. WAL does not apply to memory databases.
		return fmt.Sprintf("file:weftmem?mode=memory&cache=shared&_pragma=foreign_keys(ON)&_pragma=busy_timeout(%d)", busyMs)
	}

	if strings.HasPrefix(path, "file:") {
		conn := path
		sep := "?"
		if strings.Contains(conn, "?") {
			sep = "&"
		}
		if !strings.Contains(conn, "_pragma=foreign_keys") {
			conn += sep + "_pragma=foreign_keys(ON)"
			sep = "&"
		}
		if !strings.Contains(conn, "_pragma=busy_timeout") {
			conn += fmt.Sprintf("%s_pragma=busy_timeout(%d)", sep, busyMs)
		}
		return conn
	}

	return fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, busyMs)
}
