package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"ai-novel-orchestrator/internal/domain/entity"
)

// malformedError 模型输出无法解析或不满足约束
type malformedError struct {
	reason string
}

func (e *malformedError) Error() string {
	return "malformed model output: " + e.reason
}

func malformed(format string, args ...any) error {
	return &malformedError{reason: fmt.Sprintf(format, args...)}
}

type outlinePayload struct {
	Title      string             `json:"title"`
	Logline    string             `json:"logline"`
	Characters []entity.Character `json:"characters"`
	Chapters   []struct {
		Index       int      `json:"index"`
		Title       string   `json:"title"`
		Synopsis    string   `json:"synopsis"`
		KeyEvents   []string `json:"key_events"`
		Mood        string   `json:"mood"`
		TargetWords int      `json:"target_words"`
	} `json:"chapters"`
}

// parseOutline 解析并校验大纲，章节数必须与请求一致
func parseOutline(text string, req entity.Request) (*entity.Outline, error) {
	var p outlinePayload
	if err := json.Unmarshal([]byte(extractJSON(text)), &p); err != nil {
		return nil, malformed("outline is not valid json: %v", err)
	}
	if len(p.Chapters) != req.ChapterCount {
		return nil, malformed("outline has %d chapters, want %d", len(p.Chapters), req.ChapterCount)
	}

	perChapter := req.WordCount / req.ChapterCount
	out := &entity.Outline{
		Title:   strings.TrimSpace(p.Title),
		Logline: strings.TrimSpace(p.Logline),
	}
	if out.Title == "" {
		out.Title = truncateRunes(strings.TrimSpace(req.Theme), 20)
	}
	for _, c := range p.Characters {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		out.Characters = append(out.Characters, entity.Character{
			Name:        strings.TrimSpace(c.Name),
			Role:        strings.TrimSpace(c.Role),
			Description: strings.TrimSpace(c.Description),
		})
	}

	out.Chapters = make([]entity.ChapterSpec, 0, len(p.Chapters))
	for i, c := range p.Chapters {
		synopsis := strings.TrimSpace(c.Synopsis)
		if synopsis == "" {
			return nil, malformed("chapter %d has no synopsis", i+1)
		}
		title := strings.TrimSpace(c.Title)
		if title == "" {
			title = fmt.Sprintf("第%d章", i+1)
		}
		target := c.TargetWords
		if target <= 0 {
			target = perChapter
		}
		events := make([]string, 0, len(c.KeyEvents))
		for _, e := range c.KeyEvents {
			if e = strings.TrimSpace(e); e != "" {
				events = append(events, e)
			}
		}
		// 序号以位置为准
		out.Chapters = append(out.Chapters, entity.ChapterSpec{
			Index:       i + 1,
			Title:       title,
			Synopsis:    synopsis,
			KeyEvents:   events,
			Mood:        strings.TrimSpace(c.Mood),
			TargetWords: target,
		})
	}
	return out, nil
}

// chapterReview 单章评审结果，Score 已归一化到 0..1
type chapterReview struct {
	Score    float64
	Feedback string
}

// review 全书评审结果
type review struct {
	Overall  float64
	Chapters map[int]chapterReview
	// Neutral 评审不可用时的兜底结果，不触发修订
	Neutral bool
}

type reviewPayload struct {
	Overall  float64 `json:"overall"`
	Chapters []struct {
		Index    int     `json:"index"`
		Score    float64 `json:"score"`
		Feedback string  `json:"feedback"`
	} `json:"chapters"`
}

// parseReview 解析评审输出，每章 1..5 分，总分为 sum/(n*5)
// 缺失的章节按 overall 计分，overall 缺失按 3 分计
func parseReview(text string, chapterCount int) (*review, error) {
	var p reviewPayload
	if err := json.Unmarshal([]byte(extractJSON(text)), &p); err != nil {
		return nil, malformed("review is not valid json: %v", err)
	}
	if len(p.Chapters) == 0 && p.Overall == 0 {
		return nil, malformed("review has no scores")
	}

	fallback := clampScore(p.Overall)
	if p.Overall == 0 {
		fallback = 3
	}
	raw := make(map[int]chapterReview, chapterCount)
	for _, c := range p.Chapters {
		if c.Index < 1 || c.Index > chapterCount {
			continue
		}
		raw[c.Index] = chapterReview{Score: clampScore(c.Score), Feedback: strings.TrimSpace(c.Feedback)}
	}

	out := &review{Chapters: make(map[int]chapterReview, chapterCount)}
	var sum float64
	for i := 1; i <= chapterCount; i++ {
		cr, ok := raw[i]
		if !ok {
			cr = chapterReview{Score: fallback}
		}
		sum += cr.Score
		cr.Score /= 5
		out.Chapters[i] = cr
	}
	if chapterCount > 0 {
		out.Overall = sum / float64(chapterCount*5)
	}
	return out, nil
}

// neutralReview 评审输出不可用时的中性结果
func neutralReview(chapterCount int, score float64) *review {
	out := &review{Overall: score, Chapters: make(map[int]chapterReview, chapterCount)}
	for i := 1; i <= chapterCount; i++ {
		out.Chapters[i] = chapterReview{Score: score}
	}
	return out
}

func clampScore(s float64) float64 {
	switch {
	case s < 1:
		return 1
	case s > 5:
		return 5
	}
	return s
}
