package storage

import (
	"strings"
	"testing"
)

func TestSQLiteConnString(t *testing.T) {
	tests := []struct {
		name string
		path string
		want []string // substrings that must appear
	}{
		{
			name: "plain path gets pragmas and WAL",
			path: "data/weft.db",
			want: []string{"file:data/weft.db?", "_pragma=foreign_keys(ON)", "_pragma=busy_timeout(", "journal_mode(WAL)"},
		},
		{
			name: "memory path shares cache",
			path: ":memory:",
			want: []string{"mode=memory", "cache=shared", "_pragma=busy_timeout("},
		},
		{
			name: "existing URI keeps its query and gains missing pragmas",
			path: "file:x.db?mode=ro",
			want: []string{"mode=ro", "_pragma=foreign_keys(ON)", "_pragma=busy_timeout("},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SQLiteConnString(tt.path)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("conn string %q missing %q", got, w)
				}
			}
		})
	}

	if SQLiteConnString("  ") != "" {
		t.Error("blank path must yield empty conn string")
	}

	uri := SQLiteConnString("file:x.db?_pragma=foreign_keys(ON)&_pragma=busy_timeout(1000)")
	if strings.Count(uri, "busy_timeout") != 1 {
		t.Errorf("pragmas must not be duplicated: %q", uri)
	}
}
