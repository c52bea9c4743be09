package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestFromContextAttachesTaskFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "debug", "json")
	defer Init("info", "json")

	ctx := WithTask(context.Background(), "task-1", "alice")
	ctx = WithContext(ctx, StageKey, "writing")
	Error(ctx, "stage failed", errors.New("boom"), "chapter", 3)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal log line err=%v, line=%q", err, buf.String())
	}
	want := map[string]any{
		"task_id":  "task-1",
		"identity": "alice",
		"stage":    "writing",
		"error":    "boom",
		"msg":      "stage failed",
	}
	for k, v := range want {
		if rec[k] != v {
			t.Fatalf("field %s=%v, want %v", k, rec[k], v)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{"debug": "DEBUG", "WARNING": "WARN", "error": "ERROR", "bogus": "INFO"}
	for in, want := range cases {
		if got := parseLevel(in).String(); got != want {
			t.Fatalf("parseLevel(%q)=%s, want %s", in, got, want)
		}
	}
}
