// Package storage defines the project/block persistence contract and its
// memory, SQLite and Firestore backends.
package storage

import (
	"context"

	"github.com/starford/thinkblock/internal/models"
)

// Provider is the persistence contract every backend satisfies.
//
// Lookups of a single record return an error matching apperr.ErrNotFound when
// the record is absent. Metadata getters return empty values (never an error)
// for projects that have no stored metadata.
type Provider interface {
	// ListBlocks returns the project's blocks sorted by (level, order).
	ListBlocks(ctx context.Context, projectID string) ([]models.Block, error)
	// GetBlock returns one block.
	GetBlock(ctx context.Context, projectID, blockID string) (*models.Block, error)
	// CreateBlock stores a block with a generated id. A nil Order is set to the
	// number of blocks already at the same level.
	CreateBlock(ctx context.Context, projectID string, in models.NewBlock) (*models.Block, error)
	// UpdateBlock applies the non-nil patch fields and returns the stored block.
	UpdateBlock(ctx context.Context, projectID, blockID string, patch models.BlockPatch) (*models.Block, error)
	// DeleteBlock removes a block. It reports false when the block did not exist.
	DeleteBlock(ctx context.Context, projectID, blockID string) (bool, error)

	GetCategories(ctx context.Context, projectID string) ([]string, error)
	// SetCategories replaces the whole list.
	SetCategories(ctx context.Context, projectID string, categories []string) ([]string, error)

	GetDependencyColors(ctx context.Context, projectID string) (map[string]string, error)
	SetDependencyColor(ctx context.Context, projectID, fromID, toID, color string) (map[string]string, error)
	RemoveDependencyColor(ctx context.Context, projectID, fromID, toID string) (map[string]string, error)

	GetCategoryColors(ctx context.Context, projectID string) (map[string]models.CategoryColor, error)
	SetCategoryColors(ctx context.Context, projectID string, colors map[string]models.CategoryColor) (map[string]models.CategoryColor, error)

	// GetConnectionPalette returns the palette, or the default single color when unset.
	GetConnectionPalette(ctx context.Context, projectID string) ([]string, error)
	SetConnectionPalette(ctx context.Context, projectID string, colors []string) ([]string, error)

	CreateProject(ctx context.Context, name string) (*models.Project, error)
	GetProject(ctx context.Context, projectID string) (*models.Project, error)
	// ListProjects returns every project, most recently updated first.
	ListProjects(ctx context.Context) ([]models.Project, error)
	// UpdateProject applies the patch and bumps UpdatedAt.
	UpdateProject(ctx context.Context, projectID string, patch models.ProjectPatch) (*models.Project, error)
	// DeleteProject removes the project with its blocks and metadata. It
	// reports false when the project did not exist.
	DeleteProject(ctx context.Context, projectID string) (bool, error)
	// DuplicateProject copies a project's categories and blocks into a new
	// project. With copyStructure false every copy is reset to the staging
	// list (level -1, order 0).
	DuplicateProject(ctx context.Context, sourceID, name string, copyStructure bool) (*models.Project, error)

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Metadata document names, shared by every backend.
const (
	metaCategories        = "categories"
	metaDependencyColors  = "dependency_colors"
	metaCategoryColors    = "category_colors"
	metaConnectionPalette = "connection_color_palette"
)

func defaultPalette() []string {
	return []string{models.DefaultConnectionColor}
}

// copyForDuplicate builds the NewBlock used when duplicating src.
func copyForDuplicate(src models.Block, copyStructure bool) models.NewBlock {
	nb := models.NewBlock{
		Title:       src.Title,
		Description: src.Description,
	}
	if src.Category != nil {
		c := *src.Category
		nb.Category = &c
	}
	order := 0
	if copyStructure {
		nb.Level = src.Level
		order = src.Order
	} else {
		nb.Level = models.Unplaced
	}
	nb.Order = &order
	return nb
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nonNilMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return map[K]V{}
	}
	return m
}
