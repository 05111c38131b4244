// Package frontmatter extracts and parses the YAML block at the top of a
// markdown document.
package frontmatter

import (
	"errors"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ErrMalformed is returned when a front-matter block is not a YAML mapping.
var ErrMalformed = errors.New("malformed front matter")

// headerRe matches a leading block bounded by "---" lines. The block must start
// at the very beginning of the text.
var headerRe = regexp.MustCompile(`(?s)^---\n(.*?)\n---`)

// Extract returns the text between the leading "---" delimiters.
func Extract(text string) (string, bool) {
	m := headerRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Parse decodes a front-matter block into a key/value map. An empty block
// yields an empty map.
func Parse(block string) (map[string]any, error) {
	var meta map[string]any
	if err := yaml.Unmarshal([]byte(block), &meta); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if meta == nil {
		meta = map[string]any{}
	}
	return meta, nil
}
