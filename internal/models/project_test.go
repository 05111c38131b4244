package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProject_Defaults(t *testing.T) {
	p := NewProject("www-project-zap", "ZAP")
	assert.Equal(t, ProjectLevelUnknown, p.Level)
	assert.Equal(t, ProjectTypeUnknown, p.Type)
	assert.NotNil(t, p.Tags)
	assert.Empty(t, p.Tags)
	assert.Nil(t, p.RepositoryID)
	assert.Equal(t, "ZAP", p.String())
}

func TestProjectValidate(t *testing.T) {
	p := &Project{Key: "k"}
	require.NoError(t, p.Validate())
	assert.Equal(t, ProjectLevelUnknown, p.Level)
	assert.Equal(t, ProjectTypeUnknown, p.Type)
	assert.Equal(t, []string{}, p.Tags)

	tests := []struct {
		name string
		p    Project
	}{
		{"missing key", Project{}},
		{"long key", Project{Key: strings.Repeat("k", MaxKeyLength+1)}},
		{"long name", Project{Key: "k", Name: strings.Repeat("n", MaxNameLength+1)}},
		{"long description", Project{Key: "k", Description: strings.Repeat("d", MaxDescriptionLength+1)}},
		{"bad level", Project{Key: "k", Level: "legendary"}},
		{"bad type", Project{Key: "k", Type: "tool"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestParseProjectLevelAndType(t *testing.T) {
	l, err := ParseProjectLevel("flagship")
	require.NoError(t, err)
	assert.Equal(t, ProjectLevelFlagship, l)

	_, err = ParseProjectLevel("Flagship")
	assert.ErrorIs(t, err, ErrInvalid)

	ty, err := ParseProjectType("documentation")
	require.NoError(t, err)
	assert.Equal(t, ProjectTypeDocumentation, ty)

	_, err = ParseProjectType("banner")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestProjectMatches(t *testing.T) {
	p := NewProject("www-project-zap", "OWASP ZAP")
	p.Tags = []string{"dast", "scanner"}

	assert.True(t, p.Matches(""))
	assert.True(t, p.Matches("zap"))
	assert.True(t, p.Matches("  OWASP "))
	assert.True(t, p.Matches("www-project"))
	assert.True(t, p.Matches("DAST"))
	assert.False(t, p.Matches("das"), "tags match whole words only")
	assert.False(t, p.Matches("nettacker"))
}

func TestSetRepository(t *testing.T) {
	p := NewProject("k", "n")
	repo := &Repository{ID: "r1"}
	p.SetRepository(repo)
	require.NotNil(t, p.RepositoryID)
	assert.Equal(t, "r1", *p.RepositoryID)

	repo.ID = "changed"
	assert.Equal(t, "r1", *p.RepositoryID, "reference is copied")

	p.SetRepository(nil)
	assert.Nil(t, p.RepositoryID)
}

func TestRepositoryValidate(t *testing.T) {
	r := &Repository{Owner: "OWASP", Name: "www-project-ZAP"}
	require.NoError(t, r.Validate())
	assert.Equal(t, "owasp/www-project-zap", r.Key)
	assert.Equal(t, "OWASP/www-project-ZAP", r.String())

	assert.ErrorIs(t, (&Repository{Owner: "OWASP"}).Validate(), ErrInvalid)
}

func TestTimestampsTouch(t *testing.T) {
	var ts Timestamps
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ts.Touch(first)
	assert.Equal(t, first, ts.CreatedAt)
	assert.Equal(t, first, ts.UpdatedAt)

	later := first.Add(time.Hour)
	ts.Touch(later)
	assert.Equal(t, first, ts.CreatedAt)
	assert.Equal(t, later, ts.UpdatedAt)
}
