package buildinfo

import (
	"encoding/json"
	"runtime"
	"runtime/debug"
	"testing"
)

func withBuildInfo(t *testing.T, bi *debug.BuildInfo, ok bool) {
	t.Helper()
	orig := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) { return bi, ok }
	t.Cleanup(func() { readBuildInfo = orig })
}

func TestGet_ReturnsCorrectDefaults(t *testing.T) {
	withBuildInfo(t, nil, false)

	info := Get("groupprep")

	if info.Name != "groupprep" {
		t.Errorf("expected Name='groupprep', got %q", info.Name)
	}
	if info.Version != "dev" {
		t.Errorf("expected Version='dev', got %q", info.Version)
	}
	if info.Commit != "unknown" {
		t.Errorf("expected Commit='unknown', got %q", info.Commit)
	}
	if info.BuildTime != "unknown" {
		t.Errorf("expected BuildTime='unknown', got %q", info.BuildTime)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("expected GoVersion=%q, got %q", runtime.Version(), info.GoVersion)
	}
	if want := runtime.GOOS + "/" + runtime.GOARCH; info.Platform != want {
		t.Errorf("expected Platform=%q, got %q", want, info.Platform)
	}
}

func TestGet_VCSFallback(t *testing.T) {
	tests := []struct {
		name       string
		settings   []debug.BuildSetting
		wantCommit string
		wantTime   string
	}{
		{
			name: "revision and time",
			settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "4e1c2a9b7d3f"},
				{Key: "vcs.time", Value: "2026-10-01T09:00:00Z"},
			},
			wantCommit: "4e1c2a9",
			wantTime:   "2026-10-01T09:00:00Z",
		},
		{
			name: "modified tree",
			settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "4e1c2a9b7d3f"},
				{Key: "vcs.modified", Value: "true"},
			},
			wantCommit: "4e1c2a9-dirty",
			wantTime:   "unknown",
		},
		{
			name:       "no vcs stamp",
			settings:   nil,
			wantCommit: "unknown",
			wantTime:   "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withBuildInfo(t, &debug.BuildInfo{Settings: tt.settings}, true)

			info := Get("groupprep")
			if info.Commit != tt.wantCommit {
				t.Errorf("expected Commit=%q, got %q", tt.wantCommit, info.Commit)
			}
			if info.BuildTime != tt.wantTime {
				t.Errorf("expected BuildTime=%q, got %q", tt.wantTime, info.BuildTime)
			}
		})
	}
}

func TestGet_LdflagsWin(t *testing.T) {
	origCommit := Commit
	defer func() { Commit = origCommit }()
	Commit = "abc123d"

	withBuildInfo(t, &debug.BuildInfo{Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "ffffffffff"}}}, true)

	if got := Get("groupprep").Commit; got != "abc123d" {
		t.Errorf("expected Commit='abc123d', got %q", got)
	}
}

func TestString_DefaultFormat(t *testing.T) {
	result := String()
	expected := "dev (unknown, unknown)"

	if result != expected {
		t.Errorf("expected String()=%q, got %q", expected, result)
	}
}

func TestString_CustomValues(t *testing.T) {
	origVersion := Version
	origCommit := Commit
	origBuildTime := BuildTime

	defer func() {
		Version = origVersion
		Commit = origCommit
		BuildTime = origBuildTime
	}()

	Version = "v0.3.0"
	Commit = "4e1c2a9"
	BuildTime = "2026-10-01T09:00:00Z"

	result := String()
	expected := "v0.3.0 (4e1c2a9, 2026-10-01T09:00:00Z)"

	if result != expected {
		t.Errorf("expected String()=%q, got %q", expected, result)
	}
}

func TestInfo_JSONSerialization(t *testing.T) {
	info := Info{
		Name:      "groupprep",
		Version:   "v0.3.0",
		Commit:    "4e1c2a9",
		BuildTime: "2026-10-01T09:00:00Z",
		GoVersion: "go1.24.0",
		Platform:  "linux/amd64",
	}

	data, err := json.Marshal(info)
	if err != nil {
		t.Fatalf("failed to marshal Info: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}

	expectedKeys := map[string]string{
		"name":       "groupprep",
		"version":    "v0.3.0",
		"commit":     "4e1c2a9",
		"build_time": "2026-10-01T09:00:00Z",
		"go_version": "go1.24.0",
		"platform":   "linux/amd64",
	}

	for key, expectedValue := range expectedKeys {
		value, ok := decoded[key]
		if !ok {
			t.Errorf("missing key %q in JSON output", key)
			continue
		}
		if value != expectedValue {
			t.Errorf("key %q: expected %q, got %v", key, expectedValue, value)
		}
	}

	if len(decoded) != len(expectedKeys) {
		t.Errorf("expected %d keys in JSON, got %d", len(expectedKeys), len(decoded))
	}
}
