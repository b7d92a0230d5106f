package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/thinkblock/internal/models"
)

// CreateBlockRequest is the request body for creating a block. A missing
// order appends the block to its level.
type CreateBlockRequest struct {
	Title       *string `json:"title" example:"Pick a database"`
	Description *string `json:"description" example:"Compare managed options"`
	Level       *int    `json:"level" example:"0"`
	Order       *int    `json:"order,omitempty"`
	Category    *string `json:"category,omitempty" example:"Infra"`
}

func (r CreateBlockRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.NotNil),
		validation.Field(&r.Description, validation.NotNil),
		validation.Field(&r.Level, validation.NotNil),
	)
}

func (r CreateBlockRequest) toModel() models.NewBlock {
	return models.NewBlock{
		Title:       *r.Title,
		Description: *r.Description,
		Level:       *r.Level,
		Order:       r.Order,
		Category:    r.Category,
	}
}

// UpdateBlockRequest is a partial block update. Absent and null fields are
// both left unchanged.
type UpdateBlockRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Level       *int    `json:"level,omitempty"`
	Order       *int    `json:"order,omitempty"`
	Category    *string `json:"category,omitempty"`
}

func (r UpdateBlockRequest) Validate() error { return nil }

func (r UpdateBlockRequest) toPatch() models.BlockPatch {
	return models.BlockPatch{
		Title:       r.Title,
		Description: r.Description,
		Level:       r.Level,
		Order:       r.Order,
		Category:    r.Category,
	}
}

// DependencyRequest links a block to the block it depends on.
type DependencyRequest struct {
	DependencyID string `json:"dependency_id" example:"6f1c..."`
	Color        string `json:"color,omitempty" example:"#ef4444"`
}

func (r DependencyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.DependencyID, validation.Required),
	)
}

// CategoriesRequest replaces the category list.
type CategoriesRequest struct {
	Categories []string `json:"categories"`
}

func (r CategoriesRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Categories, validation.NotNil),
	)
}

// PaletteRequest replaces the connection color palette.
type PaletteRequest struct {
	Colors []string `json:"colors"`
}

func (r PaletteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Colors, validation.NotNil),
	)
}

// CategoryColorsRequest replaces the category color map.
type CategoryColorsRequest struct {
	Colors map[string]models.CategoryColor `json:"colors"`
}

func (r CategoryColorsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Colors, validation.NotNil),
	)
}

// CreateProjectRequest is the request body for creating a project.
type CreateProjectRequest struct {
	Name *string `json:"name" example:"Launch plan"`
}

func (r CreateProjectRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.NotNil),
	)
}

// UpdateProjectRequest is a partial project update.
type UpdateProjectRequest struct {
	Name                 *string `json:"name,omitempty"`
	ProjectAnalysis      *string `json:"project_analysis,omitempty"`
	ArrangementReasoning *string `json:"arrangement_reasoning,omitempty"`
}

func (r UpdateProjectRequest) Validate() error { return nil }

func (r UpdateProjectRequest) toPatch() models.ProjectPatch {
	return models.ProjectPatch{
		Name:                 r.Name,
		ProjectAnalysis:      r.ProjectAnalysis,
		ArrangementReasoning: r.ArrangementReasoning,
	}
}

// DuplicateProjectRequest copies a project. CopyStructure defaults to true.
type DuplicateProjectRequest struct {
	Name          *string `json:"name"`
	CopyStructure *bool   `json:"copy_structure,omitempty"`
}

func (r DuplicateProjectRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.NotNil),
	)
}

func (r DuplicateProjectRequest) copyStructure() bool {
	return r.CopyStructure == nil || *r.CopyStructure
}

// GenerateBlocksRequest describes the project to break down into blocks.
type GenerateBlocksRequest struct {
	ProjectOverview *string `json:"project_overview"`
	CurrentStatus   *string `json:"current_status"`
	Problems        *string `json:"problems"`
	AdditionalInfo  string  `json:"additional_info,omitempty"`
}

func (r GenerateBlocksRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ProjectOverview, validation.NotNil),
		validation.Field(&r.CurrentStatus, validation.NotNil),
		validation.Field(&r.Problems, validation.NotNil),
	)
}

// ArrangeBlocksRequest names the blocks to place on levels.
type ArrangeBlocksRequest struct {
	BlockIDs []string `json:"block_ids"`
}

func (r ArrangeBlocksRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.BlockIDs, validation.NotNil),
	)
}

// BlocksResponse wraps block listings.
type BlocksResponse struct {
	Blocks []models.Block `json:"blocks"`
}

// BlockResponse wraps a single block.
type BlockResponse struct {
	Block *models.Block `json:"block"`
}

// ProjectResponse wraps a single project.
type ProjectResponse struct {
	Project *models.Project `json:"project"`
}

// ProjectsResponse wraps project listings.
type ProjectsResponse struct {
	Projects []models.Project `json:"projects"`
}

// GenerateBlocksResponse lists the stored blocks and the model's analysis.
type GenerateBlocksResponse struct {
	Blocks          []models.Block `json:"blocks"`
	ProjectAnalysis string         `json:"project_analysis"`
}

// ArrangeBlocksResponse lists the re-leveled blocks and the reasoning.
type ArrangeBlocksResponse struct {
	Blocks    []models.Block `json:"blocks"`
	Reasoning string         `json:"reasoning"`
}

// DeleteResponse confirms a deletion.
type DeleteResponse struct {
	Message   string `json:"message"`
	BlockID   string `json:"block_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
}
