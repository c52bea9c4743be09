package prompt

import (
	"context"
	"strings"
	"testing"

	"ai-novel-orchestrator/internal/domain/entity"
)

func sampleOutline() *entity.Outline {
	return &entity.Outline{
		Title:   "雾港",
		Logline: "失踪案背后的旧日约定",
		Characters: []entity.Character{
			{Name: "林岚", Role: "记者", Description: "固执的调查者"},
		},
		Chapters: []entity.ChapterSpec{
			{Index: 1, Title: "来信", Synopsis: "收到匿名信"},
			{Index: 2, Title: "码头", Synopsis: "夜探码头", KeyEvents: []string{"发现货箱"}},
		},
	}
}

func TestDefaultCatalogHasAutoGenre(t *testing.T) {
	c := DefaultCatalog()
	if _, ok := c.Genre(GenreAuto); !ok {
		t.Fatalf("catalog missing %q genre", GenreAuto)
	}
	if _, ok := c.Style("zhihu"); !ok {
		t.Fatalf("catalog missing zhihu style")
	}
	names := c.StyleNames()
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("StyleNames not sorted: %v", names)
		}
	}
}

func TestParseCatalogRejectsEmptyStyles(t *testing.T) {
	if _, err := ParseCatalog([]byte("genres:\n  - name: a\n")); err == nil {
		t.Fatalf("ParseCatalog err=nil, want error")
	}
}

func TestRegistryBuildsEveryRole(t *testing.T) {
	reg := NewRegistry()
	cat := DefaultCatalog()
	genre, _ := cat.Genre("mystery")
	style, _ := cat.Style("suspenseful")
	outline := sampleOutline()

	in := Input{
		Request:  entity.Request{Theme: "雾中的港口", WordCount: 6000, ChapterCount: 2},
		Genre:    genre,
		Style:    style,
		Outline:  outline,
		Chapter:  &outline.Chapters[1],
		Draft:    "夜色压着码头。",
		PrevTail: "她把信折好。",
		Digest:   "第1章 来信：收到匿名信",
	}

	for _, role := range Roles {
		p, err := reg.Build(context.Background(), role, in)
		if err != nil {
			t.Fatalf("Build(%s) err=%v", role, err)
		}
		if p.System == "" || p.User == "" {
			t.Fatalf("Build(%s) produced empty prompt: %+v", role, p)
		}
		if strings.Contains(p.User, "{chapter_count}") || strings.Contains(p.User, "{title}") {
			t.Fatalf("Build(%s) left unresolved placeholders:\n%s", role, p.User)
		}
	}
}

func TestPlannerPromptCarriesRequest(t *testing.T) {
	reg := NewRegistry()
	p, err := reg.Build(context.Background(), RolePlanner, Input{
		Request: entity.Request{Theme: "重返故乡的程序员", WordCount: 30000, ChapterCount: 12},
		Style:   Style{Label: "知乎体", Traits: []string{"第一人称"}},
	})
	if err != nil {
		t.Fatalf("Build err=%v", err)
	}
	for _, want := range []string{"重返故乡的程序员", "30000", "12", "\"target_words\": 2500"} {
		if !strings.Contains(p.User, want) {
			t.Fatalf("planner prompt missing %q:\n%s", want, p.User)
		}
	}
	if strings.Contains(p.User, "上一次输出无法被解析") {
		t.Fatalf("first attempt should not carry the format reminder")
	}
}

func TestReparseAttemptAddsFormatReminder(t *testing.T) {
	reg := NewRegistry()
	p, err := reg.Build(context.Background(), RoleReviewer, Input{
		Request: entity.Request{ChapterCount: 2},
		Outline: sampleOutline(),
		Attempt: 2,
	})
	if err != nil {
		t.Fatalf("Build err=%v", err)
	}
	if !strings.Contains(p.User, "上一次输出无法被解析") {
		t.Fatalf("reviewer prompt missing reminder:\n%s", p.User)
	}
}

func TestWriterFirstChapterPlaceholders(t *testing.T) {
	outline := sampleOutline()
	vars := writerVars(Input{Outline: outline, Chapter: &outline.Chapters[0]})
	if vars["prev_tail"] != "（这是第一章）" {
		t.Fatalf("prev_tail=%v", vars["prev_tail"])
	}
	if vars["key_events"] != "无" {
		t.Fatalf("key_events=%v", vars["key_events"])
	}
}

func TestUnknownRole(t *testing.T) {
	if _, err := NewRegistry().Build(context.Background(), Role("critic"), Input{}); err == nil {
		t.Fatalf("Build err=nil, want unknown role error")
	}
}

func TestFormatCharacters(t *testing.T) {
	got := FormatCharacters(sampleOutline())
	if got != "- 林岚（记者）：固执的调查者" {
		t.Fatalf("FormatCharacters=%q", got)
	}
	if FormatCharacters(nil) == "" {
		t.Fatalf("FormatCharacters(nil) empty")
	}
}
