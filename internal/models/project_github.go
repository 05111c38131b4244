package models

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/joescharf/nest/internal/frontmatter"
)

// IndexFile is the repository file whose front matter describes a project.
const IndexFile = "index.md"

var levelMapping = map[float64]ProjectLevel{
	2:   ProjectLevelIncubator,
	3:   ProjectLevelLab,
	3.5: ProjectLevelProduction,
	4:   ProjectLevelFlagship,
}

// FromGitHub updates the project from the front matter of the repository's
// index.md. A missing file, empty content, or missing front matter leaves the
// project untouched. The project is not saved.
func (p *Project) FromGitHub(ctx context.Context, src ContentSource, repo *Repository) error {
	index, err := src.GetContents(ctx, IndexFile)
	if err != nil {
		return fmt.Errorf("get %s: %w", IndexFile, err)
	}
	if index == nil {
		return nil
	}

	text, err := index.Text()
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}

	block, ok := frontmatter.Extract(text)
	if !ok {
		return nil
	}
	meta, err := frontmatter.Parse(block)
	if err != nil {
		return fmt.Errorf("%s: %w", IndexFile, err)
	}

	if s, ok := scalarString(meta["title"]); ok {
		p.Name = truncate(s, MaxNameLength)
	}
	if s, ok := scalarString(meta["pitch"]); ok {
		p.Description = truncate(s, MaxDescriptionLength)
	}
	if tags, ok := tagList(meta["tags"]); ok {
		p.Tags = tags
	}

	if level := meta["level"]; truthy(level) {
		p.Level = levelFor(level)
	}

	if s, ok := meta["type"].(string); ok {
		switch t := ProjectType(s); t {
		case ProjectTypeCode, ProjectTypeDocumentation:
			p.Type = t
		}
	}

	p.SetRepository(repo)
	return nil
}

// levelFor maps a numeric front-matter level onto ProjectLevel.
func levelFor(v any) ProjectLevel {
	n, ok := number(v)
	if !ok {
		return ProjectLevelUnknown
	}
	if level, ok := levelMapping[n]; ok {
		return level
	}
	return ProjectLevelUnknown
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	if n, ok := number(v); ok {
		return n != 0
	}
	return true
}

// scalarString renders a YAML scalar as text. Sequences and mappings are rejected.
func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case nil, []any, map[string]any:
		return "", false
	case string:
		return x, true
	default:
		return fmt.Sprint(x), true
	}
}

// tagList accepts a YAML sequence, or a single string of comma or space
// separated tags. Null and nested sequence items have no tag form and are
// dropped; the remaining items keep their order.
func tagList(v any) ([]string, bool) {
	switch x := v.(type) {
	case []any:
		tags := make([]string, 0, len(x))
		for _, item := range x {
			if s, ok := scalarString(item); ok {
				tags = append(tags, s)
			}
		}
		return tags, true
	case string:
		tags := strings.FieldsFunc(x, func(r rune) bool {
			return r == ',' || unicode.IsSpace(r)
		})
		if tags == nil {
			tags = []string{}
		}
		return tags, true
	}
	return nil, false
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
