// Package models defines the domain types for ThinkBlock.
package models

import "time"

// Level bounds. Levels 0..5 are placed tiers; Unplaced marks the staging list.
const (
	Unplaced = -1
	MinLevel = 0
	MaxLevel = 5
)

// DefaultConnectionColor is returned when a project has no connection palette.
const DefaultConnectionColor = "#6366f1"

// Project is a named container owning blocks and metadata documents.
type Project struct {
	ID                   string    `json:"id" firestore:"id"`
	Name                 string    `json:"name" firestore:"name"`
	CreatedAt            time.Time `json:"createdAt" firestore:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt" firestore:"updatedAt"`
	ProjectAnalysis      string    `json:"project_analysis,omitempty" firestore:"project_analysis,omitempty"`
	ArrangementReasoning string    `json:"arrangement_reasoning,omitempty" firestore:"arrangement_reasoning,omitempty"`
}

// ProjectPatch is a partial project update. Nil fields are left unchanged.
type ProjectPatch struct {
	Name                 *string
	ProjectAnalysis      *string
	ArrangementReasoning *string
}

// Apply writes the non-nil fields of p onto dst. It does not touch UpdatedAt.
func (p ProjectPatch) Apply(dst *Project) {
	if p.Name != nil {
		dst.Name = *p.Name
	}
	if p.ProjectAnalysis != nil {
		dst.ProjectAnalysis = *p.ProjectAnalysis
	}
	if p.ArrangementReasoning != nil {
		dst.ArrangementReasoning = *p.ArrangementReasoning
	}
}

// CategoryColor is the badge palette for one category.
type CategoryColor struct {
	Background string `json:"bg" firestore:"bg"`
	Text       string `json:"text" firestore:"text"`
}
