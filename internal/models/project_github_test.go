package models

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/nest/internal/frontmatter"
)

// fakeSource implements ContentSource over an in-memory file map.
type fakeSource struct {
	files map[string]*FileContent
	err   error
	calls []string
}

func (f *fakeSource) GetContents(_ context.Context, path string) (*FileContent, error) {
	f.calls = append(f.calls, path)
	if f.err != nil {
		return nil, f.err
	}
	return f.files[path], nil
}

func indexSource(markdown string) *fakeSource {
	return &fakeSource{files: map[string]*FileContent{
		IndexFile: {
			Path:     IndexFile,
			Content:  base64.StdEncoding.EncodeToString([]byte(markdown)),
			Encoding: "base64",
		},
	}}
}

func existingProject() *Project {
	p := NewProject("www-project-zap", "Original")
	p.Description = "original description"
	p.Tags = []string{"original"}
	p.Level = ProjectLevelLab
	p.Type = ProjectTypeDocumentation
	return p
}

func testRepository() *Repository {
	return &Repository{ID: "repo-1", Owner: "OWASP", Name: "www-project-zap"}
}

func TestFromGitHub_NoIndexFile(t *testing.T) {
	p := existingProject()
	before := *p

	src := &fakeSource{files: map[string]*FileContent{}}
	require.NoError(t, p.FromGitHub(context.Background(), src, testRepository()))

	assert.Equal(t, before, *p)
	assert.Nil(t, p.RepositoryID)
	assert.Equal(t, []string{IndexFile}, src.calls)
}

func TestFromGitHub_EmptyContent(t *testing.T) {
	p := existingProject()
	before := *p

	require.NoError(t, p.FromGitHub(context.Background(), indexSource(""), testRepository()))
	assert.Equal(t, before, *p)
}

func TestFromGitHub_NoFrontMatter(t *testing.T) {
	p := existingProject()
	before := *p

	src := indexSource("# OWASP ZAP\n\nThe world's most widely used web app scanner.\n")
	require.NoError(t, p.FromGitHub(context.Background(), src, testRepository()))
	assert.Equal(t, before, *p)
}

func TestFromGitHub_MapsFields(t *testing.T) {
	p := existingProject()
	src := indexSource(`---
layout: col-sidebar
title: OWASP Zed Attack Proxy
pitch: Integrated penetration testing tool
tags:
  - dast
  - proxy
  - scanner
level: 4
type: code
---

Body text.
`)

	require.NoError(t, p.FromGitHub(context.Background(), src, testRepository()))

	assert.Equal(t, "OWASP Zed Attack Proxy", p.Name)
	assert.Equal(t, "Integrated penetration testing tool", p.Description)
	assert.Equal(t, []string{"dast", "proxy", "scanner"}, p.Tags)
	assert.Equal(t, ProjectLevelFlagship, p.Level)
	assert.Equal(t, ProjectTypeCode, p.Type)
	require.NotNil(t, p.RepositoryID)
	assert.Equal(t, "repo-1", *p.RepositoryID)
	assert.Equal(t, "www-project-zap", p.Key, "key is never touched")
}

func TestFromGitHub_AbsentKeysLeaveFields(t *testing.T) {
	p := existingProject()
	src := indexSource("---\nlayout: col-sidebar\ntitle: ~\n---\n")

	require.NoError(t, p.FromGitHub(context.Background(), src, testRepository()))

	assert.Equal(t, "Original", p.Name, "null title is ignored")
	assert.Equal(t, "original description", p.Description)
	assert.Equal(t, []string{"original"}, p.Tags)
	assert.Equal(t, ProjectLevelLab, p.Level)
	assert.Equal(t, ProjectTypeDocumentation, p.Type)
}

func TestFromGitHub_Level(t *testing.T) {
	tests := []struct {
		raw  string
		want ProjectLevel
	}{
		{"2", ProjectLevelIncubator},
		{"3", ProjectLevelLab},
		{"3.0", ProjectLevelLab},
		{"3.5", ProjectLevelProduction},
		{"4", ProjectLevelFlagship},
		{"5", ProjectLevelUnknown},
		{"1", ProjectLevelUnknown},
		{"flagship", ProjectLevelUnknown},
		{"0", ProjectLevelLab},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			p := existingProject()
			src := indexSource("---\nlevel: " + tt.raw + "\n---\n")
			require.NoError(t, p.FromGitHub(context.Background(), src, testRepository()))
			assert.Equal(t, tt.want, p.Level)
		})
	}
}

func TestFromGitHub_Type(t *testing.T) {
	tests := []struct {
		raw  string
		want ProjectType
	}{
		{"code", ProjectTypeCode},
		{"documentation", ProjectTypeDocumentation},
		{"banner", ProjectTypeUnknown},
		{"tool", ProjectTypeUnknown},
		{"unknown", ProjectTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			p := NewProject("www-project-x", "x")
			src := indexSource("---\ntype: " + tt.raw + "\n---\n")
			require.NoError(t, p.FromGitHub(context.Background(), src, testRepository()))
			assert.Equal(t, tt.want, p.Type)
		})
	}

	p := existingProject()
	src := indexSource("---\ntype: banner\n---\n")
	require.NoError(t, p.FromGitHub(context.Background(), src, testRepository()))
	assert.Equal(t, ProjectTypeDocumentation, p.Type, "unrecognized type keeps prior value")
}

func TestFromGitHub_TagString(t *testing.T) {
	p := existingProject()
	src := indexSource("---\ntags: dast, proxy scanner\n---\n")
	require.NoError(t, p.FromGitHub(context.Background(), src, testRepository()))
	assert.Equal(t, []string{"dast", "proxy", "scanner"}, p.Tags)
}

func TestFromGitHub_TagSequenceKeepsScalarsOnly(t *testing.T) {
	p := existingProject()
	src := indexSource("---\ntags: [a, ~, [x, y], 7, b]\n---\n")
	require.NoError(t, p.FromGitHub(context.Background(), src, testRepository()))
	assert.Equal(t, []string{"a", "7", "b"}, p.Tags, "null and nested items are dropped, order kept")
}

func TestFromGitHub_EmptyTagSequence(t *testing.T) {
	p := existingProject()
	src := indexSource("---\ntags: []\n---\n")
	require.NoError(t, p.FromGitHub(context.Background(), src, testRepository()))
	assert.NotNil(t, p.Tags)
	assert.Empty(t, p.Tags)
}

func TestFromGitHub_SetsRepositoryWithoutOtherChanges(t *testing.T) {
	p := existingProject()
	src := indexSource("---\nlayout: col-sidebar\n---\n")
	require.NoError(t, p.FromGitHub(context.Background(), src, testRepository()))

	require.NotNil(t, p.RepositoryID)
	assert.Equal(t, "repo-1", *p.RepositoryID)
	assert.Equal(t, "Original", p.Name)
}

func TestFromGitHub_NilRepositoryClearsReference(t *testing.T) {
	p := existingProject()
	id := "old"
	p.RepositoryID = &id

	src := indexSource("---\ntitle: New\n---\n")
	require.NoError(t, p.FromGitHub(context.Background(), src, nil))
	assert.Nil(t, p.RepositoryID)
}

func TestFromGitHub_ScalarTitle(t *testing.T) {
	p := existingProject()
	src := indexSource("---\ntitle: 2024\n---\n")
	require.NoError(t, p.FromGitHub(context.Background(), src, testRepository()))
	assert.Equal(t, "2024", p.Name)
}

func TestFromGitHub_TruncatesDescription(t *testing.T) {
	p := existingProject()
	long := make([]byte, MaxDescriptionLength+50)
	for i := range long {
		long[i] = 'a'
	}
	src := indexSource("---\npitch: " + string(long) + "\n---\n")
	require.NoError(t, p.FromGitHub(context.Background(), src, testRepository()))
	assert.Len(t, p.Description, MaxDescriptionLength)
}

func TestFromGitHub_MalformedFrontMatter(t *testing.T) {
	p := existingProject()
	before := *p

	src := indexSource("---\ntitle: [unclosed\n---\n")
	err := p.FromGitHub(context.Background(), src, testRepository())
	require.Error(t, err)
	assert.ErrorIs(t, err, frontmatter.ErrMalformed)
	assert.Equal(t, before, *p)
}

func TestFromGitHub_SourceError(t *testing.T) {
	p := existingProject()
	src := &fakeSource{err: errors.New("rate limited")}

	err := p.FromGitHub(context.Background(), src, testRepository())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestFromGitHub_RawEncoding(t *testing.T) {
	p := existingProject()
	src := &fakeSource{files: map[string]*FileContent{
		IndexFile: {Path: IndexFile, Content: "---\ntitle: Raw\n---\n", Encoding: "utf-8"},
	}}
	require.NoError(t, p.FromGitHub(context.Background(), src, testRepository()))
	assert.Equal(t, "Raw", p.Name)
}

func TestFileContent_TextWrappedBase64(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("---\ntitle: Wrapped\n---\n"))
	wrapped := encoded[:10] + "\n" + encoded[10:]

	text, err := (&FileContent{Path: IndexFile, Content: wrapped, Encoding: "base64"}).Text()
	require.NoError(t, err)
	assert.Equal(t, "---\ntitle: Wrapped\n---\n", text)
}
