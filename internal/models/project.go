package models

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid")

// Field limits enforced by Validate.
const (
	MaxNameLength        = 100
	MaxKeyLength         = 100
	MaxDescriptionLength = 500
)

// ProjectLevel is the OWASP maturity level of a project.
type ProjectLevel string

const (
	ProjectLevelUnknown    ProjectLevel = "unknown"
	ProjectLevelIncubator  ProjectLevel = "incubator"
	ProjectLevelLab        ProjectLevel = "lab"
	ProjectLevelProduction ProjectLevel = "production"
	ProjectLevelFlagship   ProjectLevel = "flagship"
)

// ProjectLevels lists every level in display order.
var ProjectLevels = []ProjectLevel{
	ProjectLevelUnknown,
	ProjectLevelIncubator,
	ProjectLevelLab,
	ProjectLevelProduction,
	ProjectLevelFlagship,
}

// Valid reports whether l is one of the known levels.
func (l ProjectLevel) Valid() bool {
	for _, v := range ProjectLevels {
		if l == v {
			return true
		}
	}
	return false
}

// ParseProjectLevel converts s to a ProjectLevel, rejecting unknown strings.
func ParseProjectLevel(s string) (ProjectLevel, error) {
	l := ProjectLevel(s)
	if !l.Valid() {
		return "", fmt.Errorf("%w: project level %q", ErrInvalid, s)
	}
	return l, nil
}

// ProjectType describes what a project delivers.
type ProjectType string

const (
	ProjectTypeCode          ProjectType = "code"
	ProjectTypeDocumentation ProjectType = "documentation"
	ProjectTypeUnknown       ProjectType = "unknown"
)

// ProjectTypes lists every type in display order.
var ProjectTypes = []ProjectType{
	ProjectTypeCode,
	ProjectTypeDocumentation,
	ProjectTypeUnknown,
}

// Valid reports whether t is one of the known types.
func (t ProjectType) Valid() bool {
	for _, v := range ProjectTypes {
		if t == v {
			return true
		}
	}
	return false
}

// ParseProjectType converts s to a ProjectType, rejecting unknown strings.
func ParseProjectType(s string) (ProjectType, error) {
	t := ProjectType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: project type %q", ErrInvalid, s)
	}
	return t, nil
}

// Project represents a catalogued OWASP project.
type Project struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Key          string       `json:"key"`
	Description  string       `json:"description"`
	Level        ProjectLevel `json:"level"`
	Type         ProjectType  `json:"type"`
	Tags         []string     `json:"tags"`
	RepositoryID *string      `json:"repository_id"`
	Timestamps
}

// NewProject returns a project with every field at its default.
func NewProject(key, name string) *Project {
	return &Project{
		Key:   key,
		Name:  name,
		Level: ProjectLevelUnknown,
		Type:  ProjectTypeUnknown,
		Tags:  []string{},
	}
}

func (p *Project) String() string {
	return p.Name
}

// Matches reports whether the name or key contains query, or a tag equals it,
// ignoring case. An empty query matches every project.
func (p *Project) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(strings.ToLower(p.Key), q) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.EqualFold(tag, q) {
			return true
		}
	}
	return false
}

// SetRepository points the project at repo, or clears the reference when repo is nil.
func (p *Project) SetRepository(repo *Repository) {
	if repo == nil {
		p.RepositoryID = nil
		return
	}
	id := repo.ID
	p.RepositoryID = &id
}

// Validate enforces field limits and enumerations. Empty level, type and tags
// are filled with their defaults first.
func (p *Project) Validate() error {
	if p.Level == "" {
		p.Level = ProjectLevelUnknown
	}
	if p.Type == "" {
		p.Type = ProjectTypeUnknown
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}

	switch {
	case p.Key == "":
		return fmt.Errorf("%w: project key is required", ErrInvalid)
	case utf8.RuneCountInString(p.Key) > MaxKeyLength:
		return fmt.Errorf("%w: project key longer than %d characters", ErrInvalid, MaxKeyLength)
	case utf8.RuneCountInString(p.Name) > MaxNameLength:
		return fmt.Errorf("%w: project name longer than %d characters", ErrInvalid, MaxNameLength)
	case utf8.RuneCountInString(p.Description) > MaxDescriptionLength:
		return fmt.Errorf("%w: project description longer than %d characters", ErrInvalid, MaxDescriptionLength)
	case !p.Level.Valid():
		return fmt.Errorf("%w: project level %q", ErrInvalid, p.Level)
	case !p.Type.Valid():
		return fmt.Errorf("%w: project type %q", ErrInvalid, p.Type)
	}
	return nil
}
