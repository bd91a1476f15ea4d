package migrate

import (
	"testing"
	"testing/fstest"
)

func TestPending(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_reports.sql": {Data: []byte("SELECT 2")},
		"migrations/001_init.sql":    {Data: []byte("SELECT 1")},
		"migrations/README.md":       {Data: []byte("notes")},
		"migrations/003_indexes.sql": {Data: []byte("SELECT 3")},
	}

	tests := []struct {
		name    string
		applied []string
		want    []string
	}{
		{"fresh database", nil, []string{"001_init.sql", "002_reports.sql", "003_indexes.sql"}},
		{"partially applied", []string{"001_init.sql"}, []string{"002_reports.sql", "003_indexes.sql"}},
		{"up to date", []string{"001_init.sql", "002_reports.sql", "003_indexes.sql"}, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Pending(fsys, "migrations", tc.applied)
			if err != nil {
				t.Fatalf("Pending returned error: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("Pending = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("Pending[%d] = %s, want %s", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestPending_MissingDir(t *testing.T) {
	if _, err := Pending(fstest.MapFS{}, "migrations", nil); err == nil {
		t.Error("expected error for a missing migrations directory")
	}
}
