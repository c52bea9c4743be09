package prompt

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// GenreAuto 由策划自行选择类型
const GenreAuto = "auto"

// Genre 题材
type Genre struct {
	Name        string            `yaml:"name" json:"name"`
	Label       string            `yaml:"label" json:"label"`
	Description string            `yaml:"description" json:"description"`
	Guidance    map[string]string `yaml:"guidance,omitempty" json:"guidance,omitempty"`
}

// Style 文风
type Style struct {
	Name     string   `yaml:"name" json:"name"`
	Label    string   `yaml:"label" json:"label"`
	Traits   []string `yaml:"traits" json:"traits"`
	Language []string `yaml:"language,omitempty" json:"language,omitempty"`
}

// Catalog 题材与文风目录
type Catalog struct {
	Genres []Genre `yaml:"genres" json:"genres"`
	Styles []Style `yaml:"styles" json:"styles"`

	genres map[string]Genre
	styles map[string]Style
}

var (
	defaultCatalog     *Catalog
	defaultCatalogErr  error
	defaultCatalogOnce sync.Once
)

// DefaultCatalog 返回内置目录
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		defaultCatalog, defaultCatalogErr = ParseCatalog(catalogYAML)
	})
	if defaultCatalogErr != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", defaultCatalogErr))
	}
	return defaultCatalog
}

// ParseCatalog 解析 YAML 目录
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c.genres = make(map[string]Genre, len(c.Genres))
	for _, g := range c.Genres {
		if g.Name == "" {
			return nil, fmt.Errorf("genre without name")
		}
		c.genres[g.Name] = g
	}
	c.styles = make(map[string]Style, len(c.Styles))
	for _, s := range c.Styles {
		if s.Name == "" {
			return nil, fmt.Errorf("style without name")
		}
		c.styles[s.Name] = s
	}
	if len(c.styles) == 0 {
		return nil, fmt.Errorf("catalog has no styles")
	}
	return &c, nil
}

// Genre 按名称查找题材
func (c *Catalog) Genre(name string) (Genre, bool) {
	g, ok := c.genres[name]
	return g, ok
}

// Style 按名称查找文风
func (c *Catalog) Style(name string) (Style, bool) {
	s, ok := c.styles[name]
	return s, ok
}

// StyleNames 返回排序后的文风名称
func (c *Catalog) StyleNames() []string {
	names := make([]string, 0, len(c.styles))
	for n := range c.styles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// GenreNames 返回排序后的题材名称
func (c *Catalog) GenreNames() []string {
	names := make([]string, 0, len(c.genres))
	for n := range c.genres {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Describe 题材的提示词描述
func (g Genre) Describe() string {
	if g.Name == GenreAuto || g.Name == "" {
		return "未指定，请根据主题选择最合适的类型"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s（%s）", g.Label, g.Description)
	for _, k := range []string{"character", "plot", "language"} {
		if v := g.Guidance[k]; v != "" {
			fmt.Fprintf(&b, "\n- %s：%s", guidanceLabels[k], v)
		}
	}
	return b.String()
}

// Describe 文风的提示词描述
func (s Style) Describe() string {
	parts := append([]string{}, s.Traits...)
	parts = append(parts, s.Language...)
	return fmt.Sprintf("%s：%s", s.Label, strings.Join(parts, "、"))
}

var guidanceLabels = map[string]string{
	"character": "人物",
	"plot":      "情节",
	"language":  "语言",
}
