package models

import (
	"fmt"
	"strings"
)

// Repository represents a GitHub repository that hosts a project.
type Repository struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Language    string `json:"language"`
	Stars       int    `json:"stars"`
	IsArchived  bool   `json:"is_archived"`
	Timestamps
}

// RepositoryKey returns the canonical lower-case owner/name key.
func RepositoryKey(owner, name string) string {
	return strings.ToLower(owner + "/" + name)
}

func (r *Repository) String() string {
	return r.Owner + "/" + r.Name
}

// Validate checks required fields and fills in the key when missing.
func (r *Repository) Validate() error {
	if r.Owner == "" || r.Name == "" {
		return fmt.Errorf("%w: repository owner and name are required", ErrInvalid)
	}
	if r.Key == "" {
		r.Key = RepositoryKey(r.Owner, r.Name)
	}
	return nil
}
