package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ai-novel-orchestrator/internal/config"
	"ai-novel-orchestrator/internal/infrastructure/llm"
	"ai-novel-orchestrator/internal/infrastructure/llm/llmtest"
)

func testConfig() *config.Config {
	return &config.Config{
		Generation: config.GenerationConfig{
			DefaultWordCount:    3000,
			DefaultChapterCount: 3,
			MaxWordCount:        200000,
			MaxChapterCount:     50,
			MaxThemeRunes:       500,
			OutlineMaxTokens:    2000,
			ChapterMaxTokens:    4000,
			ReviewMaxTokens:     2000,
			MaxParseAttempts:    2,
			ContextTailRunes:    100,
			ContextDigestCount:  3,
			ContextDigestRunes:  50,
			ReviewThreshold:     0.7,
			MaxRevisions:        3,
			PolishEnabled:       true,
			ReviewEnabled:       true,
			TokensPerWordFactor: 1.5,
		},
		Quota:     config.QuotaConfig{RequestsPerHour: 10, DailyTokens: 1000000, MaxTokensPerRequest: 50000},
		Admission: config.AdmissionConfig{MaxConcurrent: 1, Backlog: 1, Mode: "enqueue"},
	}
}

func TestGenerateThenRender(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "novel.md")
	saved := filepath.Join(dir, "task.json")
	var stderr bytes.Buffer

	client := llmtest.NewNovelModel(3, 10).Client()
	err := runGenerate(context.Background(), testConfig(), client, generateOptions{
		theme:    "重返故乡的程序员",
		genre:    "workplace",
		chapters: 3,
		words:    3000,
		format:   "markdown",
		out:      out,
		save:     saved,
		identity: "local",
		interval: 5 * time.Millisecond,
	}, io.Discard, &stderr)
	if err != nil {
		t.Fatalf("runGenerate err=%v log=%s", err, stderr.String())
	}

	md, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output err=%v", err)
	}
	for _, want := range []string{"# 测试之书", "## 第1章", "## 第3章"} {
		if !strings.Contains(string(md), want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
	if !strings.Contains(stderr.String(), "[100%]") || !strings.Contains(stderr.String(), "完成：3 章") {
		t.Fatalf("progress log=%s", stderr.String())
	}

	root := NewRootCmd()
	var stdout bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"render", "--in", saved, "--format", "zhihu"})
	if err := root.Execute(); err != nil {
		t.Fatalf("render err=%v", err)
	}
	if got := strings.Count(stdout.String(), "（未完待续）"); got != 2 {
		t.Fatalf("zhihu continued markers=%d, want 2:\n%s", got, stdout.String())
	}
}

func TestGenerateReportsFailure(t *testing.T) {
	model := llmtest.NewNovelModel(2, 10)
	model.Override = func(call llmtest.Call) (llmtest.Step, bool) {
		if call.Role == "writer" {
			return llmtest.Step{Err: llm.Permanent(errors.New("content policy"))}, true
		}
		return llmtest.Step{}, false
	}

	err := runGenerate(context.Background(), testConfig(), model.Client(), generateOptions{
		theme:    "x",
		chapters: 2,
		words:    2000,
		format:   "plain",
		out:      filepath.Join(t.TempDir(), "out.txt"),
		interval: 5 * time.Millisecond,
	}, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "PERMANENT") {
		t.Fatalf("err=%v, want PERMANENT failure", err)
	}
}

func TestGenerateRejectsUnknownFormat(t *testing.T) {
	err := runGenerate(context.Background(), testConfig(), llmtest.NewNovelModel(1, 1).Client(), generateOptions{theme: "x", format: "docx"}, io.Discard, io.Discard)
	if err == nil {
		t.Fatalf("err=nil, want invalid format")
	}
}

func TestCatalogCommand(t *testing.T) {
	root := NewRootCmd()
	var stdout bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"catalog"})
	if err := root.Execute(); err != nil {
		t.Fatalf("catalog err=%v", err)
	}
	for _, want := range []string{"GENRE", "mystery", "STYLE", "zhihu"} {
		if !strings.Contains(stdout.String(), want) {
			t.Fatalf("catalog missing %q:\n%s", want, stdout.String())
		}
	}
}

func TestRenderRequiresCompletedTask(t *testing.T) {
	path := filepath.Join(t.TempDir(), "task.json")
	if err := os.WriteFile(path, []byte(`{"id":"t1","status":"writing","chapters":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"render", "--in", path})
	if err := root.Execute(); err == nil {
		t.Fatalf("render err=nil, want not ready")
	}
}
