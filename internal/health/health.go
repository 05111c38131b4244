// Package health scores how complete and well maintained a catalogued
// project's metadata is.
package health

import (
	"time"

	"github.com/joescharf/nest/internal/models"
)

// Score is the computed health of a project, 0-100.
type Score struct {
	Total      int `json:"total"`
	Metadata   int `json:"metadata"`   // 0-40
	Repository int `json:"repository"` // 0-30
	Popularity int `json:"popularity"` // 0-15
	Freshness  int `json:"freshness"`  // 0-15
}

// Scorer computes health scores for projects.
type Scorer struct {
	now func() time.Time
}

// NewScorer returns a new health Scorer.
func NewScorer() *Scorer {
	return &Scorer{now: time.Now}
}

// Score computes the health of a project. repo may be nil.
func (s *Scorer) Score(project *models.Project, repo *models.Repository) *Score {
	h := &Score{}

	if project.Description != "" {
		h.Metadata += 15
	}
	if len(project.Tags) > 0 {
		h.Metadata += 10
	}
	if project.Level != models.ProjectLevelUnknown && project.Level != "" {
		h.Metadata += 10
	}
	if project.Type != models.ProjectTypeUnknown && project.Type != "" {
		h.Metadata += 5
	}

	if repo != nil {
		h.Repository = 15
		if !repo.IsArchived {
			h.Repository += 15
		}
		h.Popularity = scoreStars(repo.Stars, 15)
	}

	h.Freshness = scoreRecency(s.now(), project.UpdatedAt, 15)

	h.Total = h.Metadata + h.Repository + h.Popularity + h.Freshness
	return h
}

// scoreRecency converts time since the last update to points.
func scoreRecency(now, t time.Time, maxPoints int) int {
	if t.IsZero() {
		return 0
	}
	days := int(now.Sub(t).Hours() / 24)
	switch {
	case days <= 7:
		return maxPoints
	case days <= 30:
		return int(float64(maxPoints) * 0.75)
	case days <= 90:
		return int(float64(maxPoints) * 0.5)
	case days <= 365:
		return int(float64(maxPoints) * 0.25)
	default:
		return int(float64(maxPoints) * 0.1)
	}
}

// scoreStars rewards community interest on a rough log scale.
func scoreStars(stars, maxPoints int) int {
	switch {
	case stars >= 1000:
		return maxPoints
	case stars >= 100:
		return int(float64(maxPoints) * 0.8)
	case stars >= 25:
		return int(float64(maxPoints) * 0.6)
	case stars >= 5:
		return int(float64(maxPoints) * 0.4)
	case stars > 0:
		return int(float64(maxPoints) * 0.2)
	default:
		return 0
	}
}
