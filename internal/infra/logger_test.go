package infra

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerLevels(t *testing.T) {
	cases := []struct {
		env   string
		level string
		want  zerolog.Level
	}{
		{"development", "", zerolog.DebugLevel},
		{"production", "", zerolog.InfoLevel},
		{"production", "WARN", zerolog.WarnLevel},
		{"development", "bogus", zerolog.DebugLevel},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		l := newLogger(&buf, tc.env, tc.level)
		if got := l.GetLevel(); got != tc.want {
			t.Fatalf("newLogger(%q, %q) level = %v, want %v", tc.env, tc.level, got, tc.want)
		}
	}
}

func TestNewLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "production", "")
	l.Info().Str("job_id", "j1").Msg("generation: job accepted")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, buf.String())
	}
	if line["service"] != "edugen" || line["job_id"] != "j1" || line["level"] != "info" {
		t.Fatalf("log line = %v", line)
	}
}
