// Package planservice coordinates storage, the AI bridge and live events for
// the HTTP and MCP surfaces.
package planservice

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/starford/thinkblock/internal/aibridge"
	"github.com/starford/thinkblock/internal/apperr"
	"github.com/starford/thinkblock/internal/models"
	"github.com/starford/thinkblock/internal/sse"
	"github.com/starford/thinkblock/internal/storage"
)

// Publisher receives change notifications. *sse.Broker satisfies it.
type Publisher interface {
	Publish(event sse.Event)
}

// Options tunes a Service. Zero timeouts disable the deadline.
type Options struct {
	StorageTimeout time.Duration
	AITimeout      time.Duration
	Logger         *slog.Logger
}

// Service coordinates storage and AI operations.
type Service struct {
	store  storage.Provider
	ai     *aibridge.Bridge
	events Publisher
	log    *slog.Logger

	storageTimeout time.Duration
	aiTimeout      time.Duration
}

// NewService creates a new plan service. ai and events may be nil.
func NewService(store storage.Provider, ai *aibridge.Bridge, events Publisher, opts Options) *Service {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:          store,
		ai:             ai,
		events:         events,
		log:            log,
		storageTimeout: opts.StorageTimeout,
		aiTimeout:      opts.AITimeout,
	}
}

// Store exposes the underlying provider (health checks).
func (s *Service) Store() storage.Provider { return s.store }

func (s *Service) storageCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storageTimeout)
}

func (s *Service) aiCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.aiTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.aiTimeout)
}

func (s *Service) publish(projectID, typ string, data any) {
	if s.events == nil {
		return
	}
	s.events.Publish(sse.Event{ProjectID: projectID, Type: typ, Data: data})
}

// --- Blocks ---

// ListBlocks returns the project's blocks sorted by (level, order).
func (s *Service) ListBlocks(ctx context.Context, projectID string) ([]models.Block, error) {
	ctx, cancel := s.storageCtx(ctx)
	defer cancel()
	return s.store.ListBlocks(ctx, projectID)
}

// CreateBlock stores a new block.
func (s *Service) CreateBlock(ctx context.Context, projectID string, in models.NewBlock) (*models.Block, error) {
	ctx, cancel := s.storageCtx(ctx)
	defer cancel()
	b, err := s.store.CreateBlock(ctx, projectID, in)
	if err != nil {
		return nil, err
	}
	s.publish(projectID, sse.BlockCreated, b)
	return b, nil
}

// UpdateBlock applies patch. Unknown blocks yield a not-found error.
func (s *Service) UpdateBlock(ctx context.Context, projectID, blockID string, patch models.BlockPatch) (*models.Block, error) {
	ctx, cancel := s.storageCtx(ctx)
	defer cancel()
	b, err := s.store.UpdateBlock(ctx, projectID, blockID, patch)
	if err != nil {
		return nil, err
	}
	s.publish(projectID, sse.BlockUpdated, b)
	return b, nil
}

// DeleteBlock removes a block. Unknown blocks yield a not-found error.
func (s *Service) DeleteBlock(ctx context.Context, projectID, blockID string) error {
	ctx, cancel := s.storageCtx(ctx)
	defer cancel()
	found, err := s.store.DeleteBlock(ctx, projectID, blockID)
	if err != nil {
		return err
	}
	if !found {
		return apperr.BlockNotFound(blockID)
	}
	s.publish(projectID, sse.BlockDeleted, map[string]string{"block_id": blockID})
	return nil
}

// --- Dependencies ---

// AddDependency records that blockID depends on dependencyID. The id is
// appended once; a non-empty color is stored for the edge either way.
func (s *Service) AddDependency(ctx context.Context, projectID, blockID, dependencyID, color string) (*models.Block, error) {
	ctx, cancel := s.storageCtx(ctx)
	defer cancel()

	b, err := s.store.GetBlock(ctx, projectID, blockID)
	if err != nil {
		return nil, err
	}
	if !b.HasDependency(dependencyID) {
		deps := append(slices.Clone(b.Dependencies), dependencyID)
		if _, err := s.store.UpdateBlock(ctx, projectID, blockID, models.BlockPatch{Dependencies: deps}); err != nil {
			return nil, err
		}
	}
	if color != "" {
		if _, err := s.store.SetDependencyColor(ctx, projectID, blockID, dependencyID, color); err != nil {
			return nil, err
		}
	}

	out, err := s.store.GetBlock(ctx, projectID, blockID)
	if err != nil {
		return nil, err
	}
	s.publish(projectID, sse.DependencyChanged, out)
	return out, nil
}

// RemoveDependency drops dependencyID and its edge color. Removing an id
// that is not listed is a no-op.
func (s *Service) RemoveDependency(ctx context.Context, projectID, blockID, dependencyID string) (*models.Block, error) {
	ctx, cancel := s.storageCtx(ctx)
	defer cancel()

	b, err := s.store.GetBlock(ctx, projectID, blockID)
	if err != nil {
		return nil, err
	}
	if b.HasDependency(dependencyID) {
		deps := slices.DeleteFunc(slices.Clone(b.Dependencies), func(id string) bool { return id == dependencyID })
		if deps == nil {
			deps = []string{}
		}
		if _, err := s.store.UpdateBlock(ctx, projectID, blockID, models.BlockPatch{Dependencies: deps}); err != nil {
			return nil, err
		}
		if _, err := s.store.RemoveDependencyColor(ctx, projectID, blockID, dependencyID); err != nil {
			return nil, err
		}
	}

	out, err := s.store.GetBlock(ctx, projectID, blockID)
	if err != nil {
		return nil, err
	}
	s.publish(projectID, sse.DependencyChanged, out)
	return out, nil
}

// DependencyColors returns the edge color map.
func (s *Service) DependencyColors(ctx context.Context, projectID string) (map[string]string, error) {
	ctx, cancel := s.storageCtx(ctx)
	defer cancel()
	return s.store.GetDependencyColors(ctx, projectID)
}

// --- Categories and colors ---

func (s *Service) Categories(ctx context.Context, projectID string) ([]string, error) {
	ctx, cancel := s.storageCtx(ctx)
	defer cancel()
	return s.store.GetCategories(ctx, projectID)
}

func (s *Service) SetCategories(ctx context.Context, projectID string, categories []string) ([]string, error) {
	ctx, cancel := s.storageCtx(ctx)
	defer cancel()
	out, err := s.store.SetCategories(ctx, projectID, categories)
	if err != nil {
		return nil, err
	}
	s.publish(projectID, sse.MetadataUpdated, map[string]any{"categories": out})
	return out, nil
}

func (s *Service) CategoryColors(ctx context.Context, projectID string) (map[string]models.CategoryColor, error) {
	ctx, cancel := s.storageCtx(ctx)
	defer cancel()
	return s.store.GetCategoryColors(ctx, projectID)
}

func (s *Service) SetCategoryColors(ctx context.Context, projectID string, colors map[string]models.CategoryColor) (map[string]models.CategoryColor, error) {
	ctx, cancel := s.storageCtx(ctx)
	defer cancel()
	out, err := s.store.SetCategoryColors(ctx, projectID, colors)
	if err != nil {
		return nil, err
	}
	s.publish(projectID, sse.MetadataUpdated, map[string]any{"category_colors": out})
	return out, nil
}

func (s *Service) ConnectionPalette(ctx context.Context, projectID string) ([]string, error) {
	ctx, cancel := s.storageCtx(ctx)
	defer cancel()
	return s.store.GetConnectionPalette(ctx, projectID)
}

func (s *Service) SetConnectionPalette(ctx context.Context, projectID string, colors []string) ([]string, error) {
	ctx, cancel := s.storageCtx(ctx)
	defer cancel()
	out, err := s.store.SetConnectionPalette(ctx, projectID, colors)
	if err != nil {
		return nil, err
	}
	s.publish(projectID, sse.MetadataUpdated, map[string]any{"connection_color_palette": out})
	return out, nil
}

// --- Projects ---

func (s *Service) CreateProject(ctx context.Context, name string) (*models.Project, error) {
	ctx, cancel := s.storageCtx(ctx)
	defer cancel()
	return s.store.CreateProject(ctx, name)
}

func (s *Service) GetProject(ctx context.Context, projectID string) (*models.Project, error) {
	ctx, cancel := s.storageCtx(ctx)
	defer cancel()
	return s.store.GetProject(ctx, projectID)
}

// ListProjects returns every project, most recently updated first.
func (s *Service) ListProjects(ctx context.Context) ([]models.Project, error) {
	ctx, cancel := s.storageCtx(ctx)
	defer cancel()
	return s.store.ListProjects(ctx)
}

func (s *Service) UpdateProject(ctx context.Context, projectID string, patch models.ProjectPatch) (*models.Project, error) {
	ctx, cancel := s.storageCtx(ctx)
	defer cancel()
	p, err := s.store.UpdateProject(ctx, projectID, patch)
	if err != nil {
		return nil, err
	}
	s.publish(projectID, sse.ProjectUpdated, p)
	return p, nil
}

// DeleteProject removes the project with everything it owns.
func (s *Service) DeleteProject(ctx context.Context, projectID string) error {
	ctx, cancel := s.storageCtx(ctx)
	defer cancel()
	found, err := s.store.DeleteProject(ctx, projectID)
	if err != nil {
		return err
	}
	if !found {
		return apperr.ProjectNotFound(projectID)
	}
	s.publish(projectID, sse.ProjectDeleted, map[string]string{"project_id": projectID})
	return nil
}

func (s *Service) DuplicateProject(ctx context.Context, sourceID, name string, copyStructure bool) (*models.Project, error) {
	ctx, cancel := s.storageCtx(ctx)
	defer cancel()
	return s.store.DuplicateProject(ctx, sourceID, name, copyStructure)
}

// --- AI ---

var errNoAI = fmt.Errorf("%w: AI bridge is not configured", apperr.ErrAIService)

// GenerateRequest is the free-text project description sent to the model.
type GenerateRequest struct {
	ProjectOverview string
	CurrentStatus   string
	Problems        string
	AdditionalInfo  string
}

// GenerateResult lists the stored blocks and the model's analysis.
type GenerateResult struct {
	Blocks          []models.Block
	ProjectAnalysis string
}

// GenerateBlocks asks the model for a block breakdown and stores every
// proposed block in the staging list. Categories the model introduced are
// merged into the project's category list.
func (s *Service) GenerateBlocks(ctx context.Context, projectID string, req GenerateRequest) (*GenerateResult, error) {
	if s.ai == nil {
		return nil, errNoAI
	}

	existing, err := s.Categories(ctx, projectID)
	if err != nil {
		return nil, err
	}

	actx, cancel := s.aiCtx(ctx)
	gen, err := s.ai.GenerateBlocks(actx, aibridge.GenerateInput{
		ProjectOverview:    req.ProjectOverview,
		CurrentStatus:      req.CurrentStatus,
		Problems:           req.Problems,
		AdditionalInfo:     req.AdditionalInfo,
		ExistingCategories: existing,
	})
	cancel()
	if err != nil {
		return nil, err
	}

	sctx, cancel := s.storageCtx(ctx)
	defer cancel()

	if gen.ProjectAnalysis != "" {
		analysis := gen.ProjectAnalysis
		if _, err := s.store.UpdateProject(sctx, projectID, models.ProjectPatch{ProjectAnalysis: &analysis}); err != nil {
			s.log.Warn("storing project analysis failed",
				slog.String("project_id", projectID), slog.String("error", err.Error()))
		}
	}

	out := &GenerateResult{Blocks: make([]models.Block, 0, len(gen.Blocks)), ProjectAnalysis: gen.ProjectAnalysis}
	var seen []string
	for _, g := range gen.Blocks {
		order := 0
		nb := models.NewBlock{
			Title:       g.Title,
			Description: g.Description,
			Level:       models.Unplaced,
			Order:       &order,
		}
		if g.Category != "" {
			c := g.Category
			nb.Category = &c
			seen = append(seen, c)
		}
		b, err := s.store.CreateBlock(sctx, projectID, nb)
		if err != nil {
			return nil, err
		}
		out.Blocks = append(out.Blocks, *b)
		s.publish(projectID, sse.BlockCreated, b)
	}

	if merged, changed := mergeCategories(existing, seen); changed {
		if _, err := s.store.SetCategories(sctx, projectID, merged); err != nil {
			return nil, err
		}
		s.publish(projectID, sse.MetadataUpdated, map[string]any{"categories": merged})
	}
	return out, nil
}

// mergeCategories returns existing followed by the sorted new names that
// are not already present.
func mergeCategories(existing, found []string) ([]string, bool) {
	have := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		have[c] = struct{}{}
	}
	var added []string
	for _, c := range found {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := have[c]; ok {
			continue
		}
		have[c] = struct{}{}
		added = append(added, c)
	}
	if len(added) == 0 {
		return existing, false
	}
	sort.Strings(added)
	return append(slices.Clone(existing), added...), true
}

// ArrangeResult carries the re-leveled blocks and the model's reasoning.
type ArrangeResult struct {
	Blocks    []models.Block
	Reasoning string
}

// ArrangeBlocks asks the model to place the selected blocks on levels and
// stores the result. It fails with a validation error when none of
// blockIDs belongs to the project.
func (s *Service) ArrangeBlocks(ctx context.Context, projectID string, blockIDs []string) (*ArrangeResult, error) {
	if s.ai == nil {
		return nil, errNoAI
	}

	all, err := s.ListBlocks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]struct{}, len(blockIDs))
	for _, id := range blockIDs {
		wanted[id] = struct{}{}
	}
	var selected []models.Block
	for _, b := range all {
		if _, ok := wanted[b.ID]; ok {
			selected = append(selected, b)
		}
	}
	if len(selected) == 0 {
		return nil, apperr.Invalid("no blocks to arrange")
	}

	var overview string
	if p, err := s.GetProject(ctx, projectID); err == nil {
		overview = p.ProjectAnalysis
	} else {
		s.log.Warn("project lookup before arrange failed",
			slog.String("project_id", projectID), slog.String("error", err.Error()))
	}

	actx, cancel := s.aiCtx(ctx)
	arranged, err := s.ai.ArrangeBlocks(actx, aibridge.ArrangeInput{Blocks: selected, ProjectOverview: overview})
	cancel()
	if err != nil {
		return nil, err
	}

	sctx, cancel := s.storageCtx(ctx)
	defer cancel()

	out := &ArrangeResult{Blocks: make([]models.Block, 0, len(arranged.Blocks)), Reasoning: arranged.Reasoning}
	for _, b := range arranged.Blocks {
		level := b.Level
		updated, err := s.store.UpdateBlock(sctx, projectID, b.ID, models.BlockPatch{Level: &level})
		if err != nil {
			return nil, err
		}
		out.Blocks = append(out.Blocks, *updated)
		s.publish(projectID, sse.BlockUpdated, updated)
	}

	if arranged.Reasoning != "" {
		reasoning := arranged.Reasoning
		if _, err := s.store.UpdateProject(sctx, projectID, models.ProjectPatch{ArrangementReasoning: &reasoning}); err != nil {
			s.log.Warn("storing arrangement reasoning failed",
				slog.String("project_id", projectID), slog.String("error", err.Error()))
		}
	}
	return out, nil
}
