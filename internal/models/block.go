package models

import "strings"

// Block is a unit of planned work placed at a level within a project.
type Block struct {
	ID           string   `json:"id" firestore:"id"`
	Title        string   `json:"title" firestore:"title"`
	Description  string   `json:"description" firestore:"description"`
	Level        int      `json:"level" firestore:"level"`
	Order        int      `json:"order" firestore:"order"`
	Category     *string  `json:"category" firestore:"category"`
	Dependencies []string `json:"dependencies,omitempty" firestore:"dependencies,omitempty"`
}

// NewBlock is the input for creating a block. A nil Order asks the store to
// append the block after the blocks already at Level.
type NewBlock struct {
	Title       string
	Description string
	Level       int
	Order       *int
	Category    *string
}

// BlockPatch is a partial block update. Nil fields are dropped before the
// update is applied, so a patch can never clear a field.
type BlockPatch struct {
	Title        *string
	Description  *string
	Level        *int
	Order        *int
	Category     *string
	Dependencies []string
}

// Apply writes the non-nil fields of p onto dst.
func (p BlockPatch) Apply(dst *Block) {
	if p.Title != nil {
		dst.Title = *p.Title
	}
	if p.Description != nil {
		dst.Description = *p.Description
	}
	if p.Level != nil {
		dst.Level = *p.Level
	}
	if p.Order != nil {
		dst.Order = *p.Order
	}
	if p.Category != nil {
		c := *p.Category
		dst.Category = &c
	}
	if p.Dependencies != nil {
		dst.Dependencies = append([]string(nil), p.Dependencies...)
	}
}

// Clone returns a deep copy of b.
func (b Block) Clone() Block {
	out := b
	if b.Category != nil {
		c := *b.Category
		out.Category = &c
	}
	if b.Dependencies != nil {
		out.Dependencies = append([]string(nil), b.Dependencies...)
	}
	return out
}

// HasDependency reports whether id is already listed as a dependency.
func (b Block) HasDependency(id string) bool {
	for _, d := range b.Dependencies {
		if d == id {
			return true
		}
	}
	return false
}

// Less orders blocks by (level, order) ascending.
func Less(a, b Block) bool {
	if a.Level != b.Level {
		return a.Level < b.Level
	}
	return a.Order < b.Order
}

// EdgeKey is the dependency-color map key for the edge from -> to.
// Ids containing "_" can collide; generated ids (uuid, Firestore auto ids)
// never contain it.
func EdgeKey(from, to string) string {
	return from + "_" + to
}

// CategoryName returns the block category or "" when unset.
func (b Block) CategoryName() string {
	if b.Category == nil {
		return ""
	}
	return strings.TrimSpace(*b.Category)
}
