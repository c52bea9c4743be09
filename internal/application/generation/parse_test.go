package generation

import (
	"testing"

	"ai-novel-orchestrator/internal/domain/entity"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct{ in, want string }{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"前言 {\"a\":{\"b\":2}} 结尾", `{"a":{"b":2}}`},
		{"  {\"a\":1}  ", `{"a":1}`},
		{"no json here", "no json here"},
		{"broken {\"a\": } tail", `broken {"a": } tail`},
	}
	for _, tc := range cases {
		if got := extractJSON(tc.in); got != tc.want {
			t.Fatalf("extractJSON(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseOutlineNormalizes(t *testing.T) {
	req := entity.Request{Theme: "重逢", WordCount: 3000, ChapterCount: 2}
	o, err := parseOutline(`{"chapters":[{"index":7,"synopsis":"相遇"},{"index":9,"title":"告别","synopsis":"离开","target_words":900}]}`, req)
	if err != nil {
		t.Fatalf("parseOutline err=%v", err)
	}
	if o.Title != "重逢" {
		t.Fatalf("title=%q, want theme fallback", o.Title)
	}
	if o.Chapters[0].Index != 1 || o.Chapters[1].Index != 2 {
		t.Fatalf("indices not renumbered: %+v", o.Chapters)
	}
	if o.Chapters[0].Title != "第1章" || o.Chapters[0].TargetWords != 1500 || o.Chapters[1].TargetWords != 900 {
		t.Fatalf("chapters=%+v", o.Chapters)
	}
}

func TestParseOutlineRejectsWrongCount(t *testing.T) {
	req := entity.Request{Theme: "x", WordCount: 3000, ChapterCount: 3}
	if _, err := parseOutline(`{"title":"t","chapters":[{"synopsis":"a"}]}`, req); err == nil {
		t.Fatalf("parseOutline err=nil, want chapter count error")
	}
	if _, err := parseOutline(`{"chapters":[{"synopsis":"a"},{"synopsis":""},{"synopsis":"c"}]}`, req); err == nil {
		t.Fatalf("parseOutline err=nil, want empty synopsis error")
	}
}

func TestParseReviewNormalizes(t *testing.T) {
	rv, err := parseReview(`{"overall":3,"chapters":[{"index":1,"score":5},{"index":2,"score":9},{"index":9,"score":1}]}`, 3)
	if err != nil {
		t.Fatalf("parseReview err=%v", err)
	}
	// 5 + clamp(9)=5 + 缺失按 overall=3
	if want := 13.0 / 15.0; rv.Overall != want {
		t.Fatalf("overall=%v, want %v", rv.Overall, want)
	}
	if rv.Chapters[3].Score != 0.6 {
		t.Fatalf("chapter 3 score=%v, want 0.6", rv.Chapters[3].Score)
	}
	if _, err := parseReview(`{}`, 3); err == nil {
		t.Fatalf("parseReview err=nil, want no scores error")
	}
}

func TestRuneHelpers(t *testing.T) {
	if got := tailRunes("一二三四五", 2); got != "四五" {
		t.Fatalf("tailRunes=%q", got)
	}
	if got := truncateRunes("一二三四五", 3); got != "一二三" {
		t.Fatalf("truncateRunes=%q", got)
	}
	if got := tailRunes("ab", 5); got != "ab" {
		t.Fatalf("tailRunes=%q", got)
	}
	if got := cleanDraft("# 第一章 来信\n正文", "来信"); got != "正文" {
		t.Fatalf("cleanDraft=%q", got)
	}
	if got := cleanDraft("来信让她彻夜难眠，她想了很久很久很久很久很久。\n第二段", "来信"); got == "第二段" {
		t.Fatalf("cleanDraft stripped a prose line")
	}
}

func TestBand(t *testing.T) {
	if got := band(20, 80, 6, 12); got != 50 {
		t.Fatalf("band=%d, want 50", got)
	}
	if got := band(20, 80, 12, 12); got != 80 {
		t.Fatalf("band=%d, want 80", got)
	}
}
