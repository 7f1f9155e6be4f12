package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBuildInfo_Unlinked(t *testing.T) {
	assert.Equal(t, BuildInfo{Version: "dev", Commit: "none", BuildTime: "unknown"}, NewBuildInfo())
}

func TestBuildInfo_LogsAsGroup(t *testing.T) {
	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).
		Info("detector starting", "build", BuildInfo{Version: "0.4.0", Commit: "9f1c2e7", BuildTime: "2026-03-10T02:00:00Z"})

	var entry struct {
		Build map[string]string `json:"build"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, map[string]string{
		"version":    "0.4.0",
		"commit":     "9f1c2e7",
		"build_time": "2026-03-10T02:00:00Z",
	}, entry.Build)
}
