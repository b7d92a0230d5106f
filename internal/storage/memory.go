package storage

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/thinkblock/internal/apperr"
	"github.com/starford/thinkblock/internal/models"
)

// projectMeta holds the per-project metadata documents.
type projectMeta struct {
	categories       []string
	dependencyColors map[string]string
	categoryColors   map[string]models.CategoryColor
	palette          []string
}

// Memory implements Provider with nested maps. Data lives for the process
// lifetime only. A single RWMutex serializes writers.
type Memory struct {
	mu       sync.RWMutex
	projects map[string]models.Project
	blocks   map[string]map[string]models.Block // project id -> block id -> block
	meta     map[string]*projectMeta
	now      func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		projects: make(map[string]models.Project),
		blocks:   make(map[string]map[string]models.Block),
		meta:     make(map[string]*projectMeta),
		now:      time.Now,
	}
}

var _ Provider = (*Memory)(nil)

func (m *Memory) metaFor(projectID string) *projectMeta {
	pm, ok := m.meta[projectID]
	if !ok {
		pm = &projectMeta{}
		m.meta[projectID] = pm
	}
	return pm
}

// ListBlocks returns the project's blocks sorted by (level, order).
func (m *Memory) ListBlocks(_ context.Context, projectID string) ([]models.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Block, 0, len(m.blocks[projectID]))
	for _, b := range m.blocks[projectID] {
		out = append(out, b.Clone())
	}
	sortBlocks(out)
	return out, nil
}

// GetBlock returns one block.
func (m *Memory) GetBlock(_ context.Context, projectID, blockID string) (*models.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blocks[projectID][blockID]
	if !ok {
		return nil, apperr.BlockNotFound(blockID)
	}
	c := b.Clone()
	return &c, nil
}

// CreateBlock stores a new block under a fresh uuid.
func (m *Memory) CreateBlock(_ context.Context, projectID string, in models.NewBlock) (*models.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.blocks[projectID]
	if !ok {
		bucket = make(map[string]models.Block)
		m.blocks[projectID] = bucket
	}
	b := m.newBlockLocked(bucket, in)
	bucket[b.ID] = b
	c := b.Clone()
	return &c, nil
}

func (m *Memory) newBlockLocked(bucket map[string]models.Block, in models.NewBlock) models.Block {
	b := models.Block{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		Level:       in.Level,
	}
	if in.Category != nil {
		c := *in.Category
		b.Category = &c
	}
	if in.Order != nil {
		b.Order = *in.Order
	} else {
		for _, other := range bucket {
			if other.Level == in.Level {
				b.Order++
			}
		}
	}
	return b
}

// UpdateBlock applies the patch to an existing block.
func (m *Memory) UpdateBlock(_ context.Context, projectID, blockID string, patch models.BlockPatch) (*models.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blocks[projectID][blockID]
	if !ok {
		return nil, apperr.BlockNotFound(blockID)
	}
	patch.Apply(&b)
	m.blocks[projectID][blockID] = b
	c := b.Clone()
	return &c, nil
}

// DeleteBlock removes a block if present.
func (m *Memory) DeleteBlock(_ context.Context, projectID, blockID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blocks[projectID][blockID]; !ok {
		return false, nil
	}
	delete(m.blocks[projectID], blockID)
	return true, nil
}

func (m *Memory) GetCategories(_ context.Context, projectID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if pm, ok := m.meta[projectID]; ok {
		return slices.Clone(nonNilSlice(pm.categories)), nil
	}
	return []string{}, nil
}

func (m *Memory) SetCategories(_ context.Context, projectID string, categories []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metaFor(projectID).categories = slices.Clone(nonNilSlice(categories))
	return slices.Clone(nonNilSlice(categories)), nil
}

func (m *Memory) GetDependencyColors(_ context.Context, projectID string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if pm, ok := m.meta[projectID]; ok {
		return maps.Clone(nonNilMap(pm.dependencyColors)), nil
	}
	return map[string]string{}, nil
}

func (m *Memory) SetDependencyColor(_ context.Context, projectID, fromID, toID, color string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pm := m.metaFor(projectID)
	if pm.dependencyColors == nil {
		pm.dependencyColors = make(map[string]string)
	}
	pm.dependencyColors[models.EdgeKey(fromID, toID)] = color
	return maps.Clone(pm.dependencyColors), nil
}

func (m *Memory) RemoveDependencyColor(_ context.Context, projectID, fromID, toID string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pm, ok := m.meta[projectID]
	if !ok || pm.dependencyColors == nil {
		return map[string]string{}, nil
	}
	delete(pm.dependencyColors, models.EdgeKey(fromID, toID))
	return maps.Clone(pm.dependencyColors), nil
}

func (m *Memory) GetCategoryColors(_ context.Context, projectID string) (map[string]models.CategoryColor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if pm, ok := m.meta[projectID]; ok {
		return maps.Clone(nonNilMap(pm.categoryColors)), nil
	}
	return map[string]models.CategoryColor{}, nil
}

func (m *Memory) SetCategoryColors(_ context.Context, projectID string, colors map[string]models.CategoryColor) (map[string]models.CategoryColor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metaFor(projectID).categoryColors = maps.Clone(nonNilMap(colors))
	return maps.Clone(nonNilMap(colors)), nil
}

func (m *Memory) GetConnectionPalette(_ context.Context, projectID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if pm, ok := m.meta[projectID]; ok && len(pm.palette) > 0 {
		return slices.Clone(pm.palette), nil
	}
	return defaultPalette(), nil
}

func (m *Memory) SetConnectionPalette(_ context.Context, projectID string, colors []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metaFor(projectID).palette = slices.Clone(nonNilSlice(colors))
	return slices.Clone(nonNilSlice(colors)), nil
}

// CreateProject registers a new empty project.
func (m *Memory) CreateProject(_ context.Context, name string) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.createProjectLocked(name)
	return &p, nil
}

func (m *Memory) createProjectLocked(name string) models.Project {
	now := m.now()
	p := models.Project{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.projects[p.ID] = p
	m.blocks[p.ID] = make(map[string]models.Block)
	m.meta[p.ID] = &projectMeta{}
	return p
}

func (m *Memory) GetProject(_ context.Context, projectID string) (*models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[projectID]
	if !ok {
		return nil, apperr.ProjectNotFound(projectID)
	}
	return &p, nil
}

// ListProjects returns projects, most recently updated first.
func (m *Memory) ListProjects(_ context.Context) ([]models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p)
	}
	sortProjects(out)
	return out, nil
}

func (m *Memory) UpdateProject(_ context.Context, projectID string, patch models.ProjectPatch) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return nil, apperr.ProjectNotFound(projectID)
	}
	patch.Apply(&p)
	p.UpdatedAt = m.now()
	m.projects[projectID] = p
	return &p, nil
}

// DeleteProject drops the project, its blocks and its metadata.
func (m *Memory) DeleteProject(_ context.Context, projectID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[projectID]; !ok {
		return false, nil
	}
	delete(m.projects, projectID)
	delete(m.blocks, projectID)
	delete(m.meta, projectID)
	return true, nil
}

// DuplicateProject copies categories and blocks under one lock, so the copy
// is all-or-nothing.
func (m *Memory) DuplicateProject(_ context.Context, sourceID, name string, copyStructure bool) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[sourceID]; !ok {
		return nil, apperr.ProjectNotFound(sourceID)
	}
	src := make([]models.Block, 0, len(m.blocks[sourceID]))
	for _, b := range m.blocks[sourceID] {
		src = append(src, b)
	}
	sortBlocks(src)

	p := m.createProjectLocked(name)
	if pm, ok := m.meta[sourceID]; ok && len(pm.categories) > 0 {
		m.meta[p.ID].categories = slices.Clone(pm.categories)
	}
	bucket := m.blocks[p.ID]
	for _, b := range src {
		nb := m.newBlockLocked(bucket, copyForDuplicate(b, copyStructure))
		bucket[nb.ID] = nb
	}
	return &p, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func sortBlocks(bs []models.Block) {
	sort.SliceStable(bs, func(i, j int) bool { return models.Less(bs[i], bs[j]) })
}

func sortProjects(ps []models.Project) {
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].UpdatedAt.After(ps[j].UpdatedAt) })
}
