package generation

import (
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// extractJSON 从夹杂说明文字或代码块的输出中提取顶层 JSON 对象
// 无法定位到合法 JSON 时返回 trim 后的原文，由调用方解码报错
func extractJSON(s string) string {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return raw
	}
	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		raw = strings.TrimSpace(m[1])
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		raw = raw[start : end+1]
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	for {
		_, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return raw
			}
			return strings.TrimSpace(s)
		}
	}
}

// truncateRunes 保留前 max 个 rune
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// tailRunes 保留末尾 max 个 rune
func tailRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	total := utf8.RuneCountInString(s)
	if total <= max {
		return s
	}
	skip := total - max
	n := 0
	for i := range s {
		if n == skip {
			return s[i:]
		}
		n++
	}
	return s
}

// cleanDraft 去掉模型偶尔附带的代码块标记与重复的章节标题
func cleanDraft(text, title string) string {
	out := strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(out); m != nil && strings.HasPrefix(out, "```") {
		out = strings.TrimSpace(m[1])
	}
	if first, rest, ok := strings.Cut(out, "\n"); ok {
		line := strings.Trim(strings.TrimSpace(first), "#*《》 ")
		if title != "" && strings.Contains(line, title) && utf8.RuneCountInString(line) <= utf8.RuneCountInString(title)+12 {
			out = strings.TrimSpace(rest)
		}
	}
	return out
}
