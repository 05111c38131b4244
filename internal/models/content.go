package models

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"
)

// FileContent is a file fetched from a remote repository, still in its
// transport encoding.
type FileContent struct {
	Path     string
	Content  string
	Encoding string
}

// ContentSource returns file contents by path. A missing file is reported as
// nil content with a nil error.
type ContentSource interface {
	GetContents(ctx context.Context, path string) (*FileContent, error)
}

// Text decodes the content. Base64 payloads may contain line breaks, as the
// GitHub contents API wraps them every 60 characters.
func (f *FileContent) Text() (string, error) {
	if f == nil {
		return "", nil
	}
	if f.Encoding != "" && f.Encoding != "base64" {
		return f.Content, nil
	}

	raw := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, f.Content)

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", f.Path, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("decode %s: not valid UTF-8", f.Path)
	}
	return string(data), nil
}
