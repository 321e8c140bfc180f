package database

import "testing"

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		wantVersion string
		wantOK      bool
	}{
		{"20260301_000000_state_history.up.sql", "20260301_000000", true},
		{"20260301_000000_state_history.down.sql", "", false},
		{"20260301_000000.up.sql", "20260301_000000", true},
		{"readme.md", "", false},
		{"notes.up.sql", "", false},
	}

	for _, tt := range tests {
		version, ok := parseMigrationFilename(tt.name)
		if ok != tt.wantOK || version != tt.wantVersion {
			t.Errorf("parseMigrationFilename(%q) = %q, %v, want %q, %v",
				tt.name, version, ok, tt.wantVersion, tt.wantOK)
		}
	}
}

func TestMigrationName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"20260301_000000_state_history.up.sql", "state_history"},
		{"20260301_000000_add_index.up.sql", "add_index"},
		{"odd.up.sql", "odd"},
	}

	for _, tt := range tests {
		if got := migrationName(tt.name); got != tt.want {
			t.Errorf("migrationName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
