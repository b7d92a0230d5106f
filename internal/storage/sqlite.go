package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/starford/thinkblock/internal/apperr"
	"github.com/starford/thinkblock/internal/models"
)

const blockColumns = `id, title, description, level, ord, category, dependencies`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlock(r rowScanner) (models.Block, error) {
	var (
		b        models.Block
		category sql.NullString
		deps     string
	)
	if err := r.Scan(&b.ID, &b.Title, &b.Description, &b.Level, &b.Order, &category, &deps); err != nil {
		return models.Block{}, err
	}
	if category.Valid {
		c := category.String
		b.Category = &c
	}
	if deps != "" && deps != "[]" {
		if err := json.Unmarshal([]byte(deps), &b.Dependencies); err != nil {
			return models.Block{}, fmt.Errorf("decode dependencies of %s: %w", b.ID, err)
		}
	}
	return b, nil
}

func scanProject(r rowScanner) (models.Project, error) {
	var (
		p                models.Project
		created, updated int64
	)
	if err := r.Scan(&p.ID, &p.Name, &created, &updated, &p.ProjectAnalysis, &p.ArrangementReasoning); err != nil {
		return models.Project{}, err
	}
	p.CreatedAt = time.Unix(0, created).UTC()
	p.UpdatedAt = time.Unix(0, updated).UTC()
	return p, nil
}

func nullableCategory(c *string) any {
	if c == nil {
		return nil
	}
	return *c
}

func encodeDeps(deps []string) string {
	if len(deps) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(deps)
	return string(data)
}

// ListBlocks returns the project's blocks sorted by (level, order).
func (s *SQLite) ListBlocks(ctx context.Context, projectID string) ([]models.Block, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+blockColumns+` FROM blocks WHERE project_id = ? ORDER BY level, ord`, projectID)
	if err != nil {
		return nil, apperr.Storage("sqlite: list blocks", err)
	}
	defer rows.Close()
	out := []models.Block{}
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, apperr.Storage("sqlite: scan block", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("sqlite: list blocks", err)
	}
	return out, nil
}

func (s *SQLite) GetBlock(ctx context.Context, projectID, blockID string) (*models.Block, error) {
	return getBlock(ctx, s.conn, projectID, blockID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getBlock(ctx context.Context, q queryer, projectID, blockID string) (*models.Block, error) {
	b, err := scanBlock(q.QueryRowContext(ctx,
		`SELECT `+blockColumns+` FROM blocks WHERE project_id = ? AND id = ?`, projectID, blockID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.BlockNotFound(blockID)
	}
	if err != nil {
		return nil, apperr.Storage("sqlite: get block", err)
	}
	return &b, nil
}

// CreateBlock inserts a block. Order assignment and insert share one
// transaction.
func (s *SQLite) CreateBlock(ctx context.Context, projectID string, in models.NewBlock) (*models.Block, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Storage("sqlite: begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	b, err := insertBlock(ctx, tx, projectID, in)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Storage("sqlite: commit", err)
	}
	return b, nil
}

func insertBlock(ctx context.Context, tx *sql.Tx, projectID string, in models.NewBlock) (*models.Block, error) {
	b := models.Block{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		Level:       in.Level,
		Category:    in.Category,
	}
	if in.Order != nil {
		b.Order = *in.Order
	} else if err := tx.QueryRowContext(ctx,
		`SELECT count(*) FROM blocks WHERE project_id = ? AND level = ?`, projectID, in.Level,
	).Scan(&b.Order); err != nil {
		return nil, apperr.Storage("sqlite: count level", err)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO blocks (id, project_id, title, description, level, ord, category, dependencies)
		VALUES (?, ?, ?, ?, ?, ?, ?, '[]')
	`, b.ID, projectID, b.Title, b.Description, b.Level, b.Order, nullableCategory(b.Category))
	if err != nil {
		return nil, apperr.Storage("sqlite: insert block", err)
	}
	return &b, nil
}

func (s *SQLite) UpdateBlock(ctx context.Context, projectID, blockID string, patch models.BlockPatch) (*models.Block, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Storage("sqlite: begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck

	b, err := getBlock(ctx, tx, projectID, blockID)
	if err != nil {
		return nil, err
	}
	patch.Apply(b)
	_, err = tx.ExecContext(ctx, `
		UPDATE blocks SET title = ?, description = ?, level = ?, ord = ?, category = ?, dependencies = ?
		WHERE project_id = ? AND id = ?
	`, b.Title, b.Description, b.Level, b.Order, nullableCategory(b.Category), encodeDeps(b.Dependencies),
		projectID, blockID)
	if err != nil {
		return nil, apperr.Storage("sqlite: update block", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Storage("sqlite: commit", err)
	}
	return b, nil
}

func (s *SQLite) DeleteBlock(ctx context.Context, projectID, blockID string) (bool, error) {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM blocks WHERE project_id = ? AND id = ?`, projectID, blockID)
	if err != nil {
		return false, apperr.Storage("sqlite: delete block", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// getMeta decodes the named metadata document into dst. It reports false
// when the document does not exist.
func (s *SQLite) getMeta(ctx context.Context, projectID, name string, dst any) (bool, error) {
	var raw string
	err := s.conn.QueryRowContext(ctx,
		`SELECT value FROM metadata WHERE project_id = ? AND name = ?`, projectID, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Storage("sqlite: get "+name, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, apperr.Storage("sqlite: decode "+name, err)
	}
	return true, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putMeta(ctx context.Context, e execer, projectID, name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("sqlite: encode %s: %w", name, err)
	}
	_, err = e.ExecContext(ctx, `
		INSERT INTO metadata (project_id, name, value) VALUES (?, ?, ?)
		ON CONFLICT(project_id, name) DO UPDATE SET value = excluded.value
	`, projectID, name, string(data))
	if err != nil {
		return apperr.Storage("sqlite: put "+name, err)
	}
	return nil
}

func (s *SQLite) GetCategories(ctx context.Context, projectID string) ([]string, error) {
	var out []string
	if _, err := s.getMeta(ctx, projectID, metaCategories, &out); err != nil {
		return nil, err
	}
	return nonNilSlice(out), nil
}

func (s *SQLite) SetCategories(ctx context.Context, projectID string, categories []string) ([]string, error) {
	categories = nonNilSlice(categories)
	if err := putMeta(ctx, s.conn, projectID, metaCategories, categories); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *SQLite) GetDependencyColors(ctx context.Context, projectID string) (map[string]string, error) {
	var out map[string]string
	if _, err := s.getMeta(ctx, projectID, metaDependencyColors, &out); err != nil {
		return nil, err
	}
	return nonNilMap(out), nil
}

func (s *SQLite) SetDependencyColor(ctx context.Context, projectID, fromID, toID, color string) (map[string]string, error) {
	colors, err := s.GetDependencyColors(ctx, projectID)
	if err != nil {
		return nil, err
	}
	colors[models.EdgeKey(fromID, toID)] = color
	if err := putMeta(ctx, s.conn, projectID, metaDependencyColors, colors); err != nil {
		return nil, err
	}
	return colors, nil
}

func (s *SQLite) RemoveDependencyColor(ctx context.Context, projectID, fromID, toID string) (map[string]string, error) {
	var colors map[string]string
	found, err := s.getMeta(ctx, projectID, metaDependencyColors, &colors)
	if err != nil || !found {
		return map[string]string{}, err
	}
	colors = nonNilMap(colors)
	key := models.EdgeKey(fromID, toID)
	if _, ok := colors[key]; !ok {
		return colors, nil
	}
	delete(colors, key)
	if err := putMeta(ctx, s.conn, projectID, metaDependencyColors, colors); err != nil {
		return nil, err
	}
	return colors, nil
}

func (s *SQLite) GetCategoryColors(ctx context.Context, projectID string) (map[string]models.CategoryColor, error) {
	var out map[string]models.CategoryColor
	if _, err := s.getMeta(ctx, projectID, metaCategoryColors, &out); err != nil {
		return nil, err
	}
	return nonNilMap(out), nil
}

func (s *SQLite) SetCategoryColors(ctx context.Context, projectID string, colors map[string]models.CategoryColor) (map[string]models.CategoryColor, error) {
	colors = nonNilMap(colors)
	if err := putMeta(ctx, s.conn, projectID, metaCategoryColors, colors); err != nil {
		return nil, err
	}
	return colors, nil
}

func (s *SQLite) GetConnectionPalette(ctx context.Context, projectID string) ([]string, error) {
	var out []string
	if _, err := s.getMeta(ctx, projectID, metaConnectionPalette, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return defaultPalette(), nil
	}
	return out, nil
}

func (s *SQLite) SetConnectionPalette(ctx context.Context, projectID string, colors []string) ([]string, error) {
	colors = nonNilSlice(colors)
	if err := putMeta(ctx, s.conn, projectID, metaConnectionPalette, colors); err != nil {
		return nil, err
	}
	return colors, nil
}

const projectColumns = `id, name, created_at, updated_at, project_analysis, arrangement_reasoning`

func insertProject(ctx context.Context, e execer, name string) (*models.Project, error) {
	now := time.Now().UTC()
	p := models.Project{ID: uuid.NewString(), Name: name, CreatedAt: now, UpdatedAt: now}
	_, err := e.ExecContext(ctx,
		`INSERT INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?, '', '')`,
		p.ID, p.Name, now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, apperr.Storage("sqlite: insert project", err)
	}
	return &p, nil
}

func (s *SQLite) CreateProject(ctx context.Context, name string) (*models.Project, error) {
	return insertProject(ctx, s.conn, name)
}

func (s *SQLite) GetProject(ctx context.Context, projectID string) (*models.Project, error) {
	return getProject(ctx, s.conn, projectID)
}

func getProject(ctx context.Context, q queryer, projectID string) (*models.Project, error) {
	p, err := scanProject(q.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, projectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ProjectNotFound(projectID)
	}
	if err != nil {
		return nil, apperr.Storage("sqlite: get project", err)
	}
	return &p, nil
}

func (s *SQLite) ListProjects(ctx context.Context) ([]models.Project, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY updated_at DESC`)
	if err != nil {
		return nil, apperr.Storage("sqlite: list projects", err)
	}
	defer rows.Close()
	out := []models.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, apperr.Storage("sqlite: scan project", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("sqlite: list projects", err)
	}
	return out, nil
}

func (s *SQLite) UpdateProject(ctx context.Context, projectID string, patch models.ProjectPatch) (*models.Project, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Storage("sqlite: begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck

	p, err := getProject(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	patch.Apply(p)
	p.UpdatedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE projects SET name = ?, updated_at = ?, project_analysis = ?, arrangement_reasoning = ?
		WHERE id = ?
	`, p.Name, p.UpdatedAt.UnixNano(), p.ProjectAnalysis, p.ArrangementReasoning, projectID)
	if err != nil {
		return nil, apperr.Storage("sqlite: update project", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Storage("sqlite: commit", err)
	}
	return p, nil
}

// DeleteProject removes the project row, its blocks and metadata in one
// transaction.
func (s *SQLite) DeleteProject(ctx context.Context, projectID string) (bool, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, apperr.Storage("sqlite: begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, projectID)
	if err != nil {
		return false, apperr.Storage("sqlite: delete project", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM blocks WHERE project_id = ?`, projectID); err != nil {
		return false, apperr.Storage("sqlite: delete blocks", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM metadata WHERE project_id = ?`, projectID); err != nil {
		return false, apperr.Storage("sqlite: delete metadata", err)
	}
	if err := tx.Commit(); err != nil {
		return false, apperr.Storage("sqlite: commit", err)
	}
	return true, nil
}

// DuplicateProject copies the source inside one transaction; a failure
// leaves no partial destination project behind.
func (s *SQLite) DuplicateProject(ctx context.Context, sourceID, name string, copyStructure bool) (*models.Project, error) {
	if _, err := s.GetProject(ctx, sourceID); err != nil {
		return nil, err
	}
	blocks, err := s.ListBlocks(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	categories, err := s.GetCategories(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Storage("sqlite: begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck

	p, err := insertProject(ctx, tx, name)
	if err != nil {
		return nil, err
	}
	if len(categories) > 0 {
		if err := putMeta(ctx, tx, p.ID, metaCategories, categories); err != nil {
			return nil, err
		}
	}
	for _, b := range blocks {
		if _, err := insertBlock(ctx, tx, p.ID, copyForDuplicate(b, copyStructure)); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Storage("sqlite: commit", err)
	}
	return p, nil
}
