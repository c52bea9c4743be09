package orchestrator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"ai-novel-orchestrator/internal/config"
	"ai-novel-orchestrator/internal/domain/entity"
	"ai-novel-orchestrator/internal/workflow/prompt"
	apperrors "ai-novel-orchestrator/pkg/errors"
)

// DefaultStyle 未指定文风时使用
const DefaultStyle = "zhihu"

// normalize 填充缺省值并校验请求
func normalize(req entity.Request, cfg config.GenerationConfig, catalog *prompt.Catalog) (entity.Request, error) {
	req.Theme = strings.TrimSpace(req.Theme)
	req.Genre = strings.TrimSpace(req.Genre)
	req.Style = strings.TrimSpace(req.Style)

	if req.Theme == "" {
		return req, invalid("theme is required")
	}
	if cfg.MaxThemeRunes > 0 && utf8.RuneCountInString(req.Theme) > cfg.MaxThemeRunes {
		return req, invalid("theme exceeds %d characters", cfg.MaxThemeRunes)
	}

	if req.Genre == "" {
		req.Genre = prompt.GenreAuto
	}
	if _, ok := catalog.Genre(req.Genre); !ok {
		return req, invalid("unknown genre %q", req.Genre)
	}
	if req.Style == "" {
		req.Style = DefaultStyle
	}
	if _, ok := catalog.Style(req.Style); !ok {
		return req, invalid("unknown style %q", req.Style)
	}

	if req.WordCount == 0 {
		req.WordCount = cfg.DefaultWordCount
	}
	if req.ChapterCount == 0 {
		req.ChapterCount = cfg.DefaultChapterCount
	}
	switch {
	case req.WordCount <= 0:
		return req, invalid("word_count must be positive")
	case req.ChapterCount <= 0:
		return req, invalid("chapter_count must be positive")
	case cfg.MaxWordCount > 0 && req.WordCount > cfg.MaxWordCount:
		return req, invalid("word_count exceeds %d", cfg.MaxWordCount)
	case cfg.MaxChapterCount > 0 && req.ChapterCount > cfg.MaxChapterCount:
		return req, invalid("chapter_count exceeds %d", cfg.MaxChapterCount)
	case cfg.MinWordCount > 0 && req.WordCount < cfg.MinWordCount:
		return req, invalid("word_count must be at least %d", cfg.MinWordCount)
	case req.WordCount < req.ChapterCount:
		return req, invalid("word_count must be at least chapter_count")
	}
	return req, nil
}

func invalid(format string, args ...any) error {
	return apperrors.ErrInvalidRequest.WithDetail(fmt.Sprintf(format, args...))
}
