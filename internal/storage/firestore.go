package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/starford/thinkblock/internal/apperr"
	"github.com/starford/thinkblock/internal/metrics"
	"github.com/starford/thinkblock/internal/models"
)

const (
	colProjects = "projects"
	colBlocks   = "blocks"
	colMetadata = "metadata"
)

// Firestore implements Provider on Cloud Firestore. Layout:
//
//	projects/{projectID}
//	projects/{projectID}/blocks/{blockID}
//	projects/{projectID}/metadata/{categories|dependency_colors|category_colors|connection_color_palette}
type Firestore struct {
	client *firestore.Client
	log    *slog.Logger
}

var _ Provider = (*Firestore)(nil)

// OpenFirestore connects to the given database ("" selects the default one).
func OpenFirestore(ctx context.Context, projectID, database string, log *slog.Logger, opts ...option.ClientOption) (*Firestore, error) {
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	if log == nil {
		log = slog.Default()
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: firestore client: %w", err)
	}
	return &Firestore{client: client, log: log}, nil
}

func (f *Firestore) project(id string) *firestore.DocumentRef {
	return f.client.Collection(colProjects).Doc(id)
}

func (f *Firestore) blocks(projectID string) *firestore.CollectionRef {
	return f.project(projectID).Collection(colBlocks)
}

func (f *Firestore) metaDoc(projectID, name string) *firestore.DocumentRef {
	return f.project(projectID).Collection(colMetadata).Doc(name)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (f *Firestore) fail(op string, err error) error {
	metrics.StorageError("firestore", op)
	return apperr.Storage("firestore: "+op, err)
}

func decodeBlock(snap *firestore.DocumentSnapshot) (models.Block, error) {
	var b models.Block
	if err := snap.DataTo(&b); err != nil {
		return models.Block{}, err
	}
	b.ID = snap.Ref.ID
	return b, nil
}

// ListBlocks returns the project's blocks sorted by (level, order). A
// backend failure is logged and yields an empty list.
func (f *Firestore) ListBlocks(ctx context.Context, projectID string) ([]models.Block, error) {
	docs, err := f.blocks(projectID).Documents(ctx).GetAll()
	if err != nil {
		metrics.StorageError("firestore", "list_blocks")
		f.log.Error("list blocks failed", "project_id", projectID, "error", err)
		return []models.Block{}, nil
	}
	out := make([]models.Block, 0, len(docs))
	for _, d := range docs {
		b, err := decodeBlock(d)
		if err != nil {
			f.log.Warn("skip undecodable block", "project_id", projectID, "block_id", d.Ref.ID, "error", err)
			continue
		}
		out = append(out, b)
	}
	sortBlocks(out)
	return out, nil
}

func (f *Firestore) GetBlock(ctx context.Context, projectID, blockID string) (*models.Block, error) {
	snap, err := f.blocks(projectID).Doc(blockID).Get(ctx)
	if isNotFound(err) {
		return nil, apperr.BlockNotFound(blockID)
	}
	if err != nil {
		return nil, f.fail("get_block", err)
	}
	b, err := decodeBlock(snap)
	if err != nil {
		return nil, f.fail("get_block", err)
	}
	return &b, nil
}

// CreateBlock counts the blocks at the target level and then writes the new
// document. The two steps are not atomic; concurrent creates at one level
// can receive the same order.
func (f *Firestore) CreateBlock(ctx context.Context, projectID string, in models.NewBlock) (*models.Block, error) {
	ref := f.blocks(projectID).NewDoc()
	b := models.Block{
		ID:          ref.ID,
		Title:       in.Title,
		Description: in.Description,
		Level:       in.Level,
		Category:    in.Category,
	}
	if in.Order != nil {
		b.Order = *in.Order
	} else {
		docs, err := f.blocks(projectID).Where("level", "==", in.Level).Documents(ctx).GetAll()
		if err != nil {
			return nil, f.fail("count_level", err)
		}
		b.Order = len(docs)
	}
	if _, err := ref.Set(ctx, b); err != nil {
		return nil, f.fail("create_block", err)
	}
	return &b, nil
}

func (f *Firestore) UpdateBlock(ctx context.Context, projectID, blockID string, patch models.BlockPatch) (*models.Block, error) {
	ref := f.blocks(projectID).Doc(blockID)
	var out models.Block
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if isNotFound(err) {
			return apperr.BlockNotFound(blockID)
		}
		if err != nil {
			return err
		}
		b, err := decodeBlock(snap)
		if err != nil {
			return err
		}
		patch.Apply(&b)
		out = b
		return tx.Set(ref, b)
	})
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, f.fail("update_block", err)
	}
	return &out, nil
}

func (f *Firestore) DeleteBlock(ctx context.Context, projectID, blockID string) (bool, error) {
	ref := f.blocks(projectID).Doc(blockID)
	if _, err := ref.Get(ctx); isNotFound(err) {
		return false, nil
	} else if err != nil {
		return false, f.fail("delete_block", err)
	}
	if _, err := ref.Delete(ctx); err != nil {
		return false, f.fail("delete_block", err)
	}
	return true, nil
}

type categoriesDoc struct {
	Categories []string `firestore:"categories"`
}

type dependencyColorsDoc struct {
	Colors map[string]string `firestore:"colors"`
}

type categoryColorsDoc struct {
	Colors map[string]models.CategoryColor `firestore:"colors"`
}

type paletteDoc struct {
	Colors []string `firestore:"colors"`
}

// readMeta decodes the named metadata document into dst and reports whether
// it exists.
func (f *Firestore) readMeta(ctx context.Context, projectID, name string, dst any) (bool, error) {
	snap, err := f.metaDoc(projectID, name).Get(ctx)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, f.fail("get_"+name, err)
	}
	if err := snap.DataTo(dst); err != nil {
		return false, f.fail("decode_"+name, err)
	}
	return true, nil
}

func (f *Firestore) writeMeta(ctx context.Context, projectID, name string, v any) error {
	if _, err := f.metaDoc(projectID, name).Set(ctx, v); err != nil {
		return f.fail("set_"+name, err)
	}
	return nil
}

func (f *Firestore) GetCategories(ctx context.Context, projectID string) ([]string, error) {
	var doc categoriesDoc
	if _, err := f.readMeta(ctx, projectID, metaCategories, &doc); err != nil {
		return nil, err
	}
	return nonNilSlice(doc.Categories), nil
}

func (f *Firestore) SetCategories(ctx context.Context, projectID string, categories []string) ([]string, error) {
	categories = nonNilSlice(categories)
	if err := f.writeMeta(ctx, projectID, metaCategories, categoriesDoc{Categories: categories}); err != nil {
		return nil, err
	}
	return categories, nil
}

func (f *Firestore) GetDependencyColors(ctx context.Context, projectID string) (map[string]string, error) {
	var doc dependencyColorsDoc
	if _, err := f.readMeta(ctx, projectID, metaDependencyColors, &doc); err != nil {
		return nil, err
	}
	return nonNilMap(doc.Colors), nil
}

func (f *Firestore) SetDependencyColor(ctx context.Context, projectID, fromID, toID, color string) (map[string]string, error) {
	colors, err := f.GetDependencyColors(ctx, projectID)
	if err != nil {
		return nil, err
	}
	colors[models.EdgeKey(fromID, toID)] = color
	if err := f.writeMeta(ctx, projectID, metaDependencyColors, dependencyColorsDoc{Colors: colors}); err != nil {
		return nil, err
	}
	return colors, nil
}

func (f *Firestore) RemoveDependencyColor(ctx context.Context, projectID, fromID, toID string) (map[string]string, error) {
	var doc dependencyColorsDoc
	found, err := f.readMeta(ctx, projectID, metaDependencyColors, &doc)
	if err != nil || !found {
		return map[string]string{}, err
	}
	colors := nonNilMap(doc.Colors)
	key := models.EdgeKey(fromID, toID)
	if _, ok := colors[key]; !ok {
		return colors, nil
	}
	delete(colors, key)
	if err := f.writeMeta(ctx, projectID, metaDependencyColors, dependencyColorsDoc{Colors: colors}); err != nil {
		return nil, err
	}
	return colors, nil
}

func (f *Firestore) GetCategoryColors(ctx context.Context, projectID string) (map[string]models.CategoryColor, error) {
	var doc categoryColorsDoc
	if _, err := f.readMeta(ctx, projectID, metaCategoryColors, &doc); err != nil {
		return nil, err
	}
	return nonNilMap(doc.Colors), nil
}

func (f *Firestore) SetCategoryColors(ctx context.Context, projectID string, colors map[string]models.CategoryColor) (map[string]models.CategoryColor, error) {
	colors = nonNilMap(colors)
	if err := f.writeMeta(ctx, projectID, metaCategoryColors, categoryColorsDoc{Colors: colors}); err != nil {
		return nil, err
	}
	return colors, nil
}

func (f *Firestore) GetConnectionPalette(ctx context.Context, projectID string) ([]string, error) {
	var doc paletteDoc
	if _, err := f.readMeta(ctx, projectID, metaConnectionPalette, &doc); err != nil {
		return nil, err
	}
	if len(doc.Colors) == 0 {
		return defaultPalette(), nil
	}
	return doc.Colors, nil
}

func (f *Firestore) SetConnectionPalette(ctx context.Context, projectID string, colors []string) ([]string, error) {
	colors = nonNilSlice(colors)
	if err := f.writeMeta(ctx, projectID, metaConnectionPalette, paletteDoc{Colors: colors}); err != nil {
		return nil, err
	}
	return colors, nil
}

func newProject(name string) models.Project {
	now := time.Now().UTC()
	return models.Project{ID: uuid.NewString(), Name: name, CreatedAt: now, UpdatedAt: now}
}

func (f *Firestore) CreateProject(ctx context.Context, name string) (*models.Project, error) {
	p := newProject(name)
	if _, err := f.project(p.ID).Set(ctx, p); err != nil {
		return nil, f.fail("create_project", err)
	}
	return &p, nil
}

func decodeProject(snap *firestore.DocumentSnapshot) (models.Project, error) {
	var p models.Project
	if err := snap.DataTo(&p); err != nil {
		return models.Project{}, err
	}
	p.ID = snap.Ref.ID
	return p, nil
}

func (f *Firestore) GetProject(ctx context.Context, projectID string) (*models.Project, error) {
	snap, err := f.project(projectID).Get(ctx)
	if isNotFound(err) {
		return nil, apperr.ProjectNotFound(projectID)
	}
	if err != nil {
		return nil, f.fail("get_project", err)
	}
	p, err := decodeProject(snap)
	if err != nil {
		return nil, f.fail("get_project", err)
	}
	return &p, nil
}

// ListProjects streams projects ordered by updatedAt descending.
func (f *Firestore) ListProjects(ctx context.Context) ([]models.Project, error) {
	iter := f.client.Collection(colProjects).OrderBy("updatedAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()
	out := []models.Project{}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, f.fail("list_projects", err)
		}
		p, err := decodeProject(snap)
		if err != nil {
			f.log.Warn("skip undecodable project", "project_id", snap.Ref.ID, "error", err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *Firestore) UpdateProject(ctx context.Context, projectID string, patch models.ProjectPatch) (*models.Project, error) {
	ref := f.project(projectID)
	var out models.Project
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if isNotFound(err) {
			return apperr.ProjectNotFound(projectID)
		}
		if err != nil {
			return err
		}
		p, err := decodeProject(snap)
		if err != nil {
			return err
		}
		patch.Apply(&p)
		p.UpdatedAt = time.Now().UTC()
		out = p
		return tx.Set(ref, p)
	})
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, f.fail("update_project", err)
	}
	return &out, nil
}

// DeleteProject removes every block and metadata document, then the project
// document itself.
func (f *Firestore) DeleteProject(ctx context.Context, projectID string) (bool, error) {
	ref := f.project(projectID)
	if _, err := ref.Get(ctx); isNotFound(err) {
		return false, nil
	} else if err != nil {
		return false, f.fail("delete_project", err)
	}

	bw := f.client.BulkWriter(ctx)
	var jobs []bulkJob
	for _, col := range []string{colBlocks, colMetadata} {
		docs, err := ref.Collection(col).Documents(ctx).GetAll()
		if err != nil {
			bw.End()
			return false, f.fail("delete_project", err)
		}
		for _, d := range docs {
			job, err := bw.Delete(d.Ref)
			if err != nil {
				bw.End()
				return false, f.fail("delete_project", err)
			}
			jobs = append(jobs, job)
		}
	}
	bw.End()

	// The project document stays while any owned document survives.
	if err := bulkErr(jobs); err != nil {
		return false, f.fail("delete_project", err)
	}

	if _, err := ref.Delete(ctx); err != nil {
		return false, f.fail("delete_project", err)
	}
	return true, nil
}

// bulkJob is the part of *firestore.BulkWriterJob DeleteProject relies on.
type bulkJob interface {
	Results() (*firestore.WriteResult, error)
}

// bulkErr waits for every job and joins their failures.
func bulkErr(jobs []bulkJob) error {
	var errs []error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DuplicateProject reads the source and writes the copy in one transaction.
func (f *Firestore) DuplicateProject(ctx context.Context, sourceID, name string, copyStructure bool) (*models.Project, error) {
	var out models.Project
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(f.project(sourceID)); isNotFound(err) {
			return apperr.ProjectNotFound(sourceID)
		} else if err != nil {
			return err
		}
		blockDocs, err := tx.Documents(f.blocks(sourceID)).GetAll()
		if err != nil {
			return err
		}
		var cats categoriesDoc
		catSnap, err := tx.Get(f.metaDoc(sourceID, metaCategories))
		switch {
		case isNotFound(err):
		case err != nil:
			return err
		default:
			if err := catSnap.DataTo(&cats); err != nil {
				return err
			}
		}

		src := make([]models.Block, 0, len(blockDocs))
		for _, d := range blockDocs {
			b, err := decodeBlock(d)
			if err != nil {
				return err
			}
			src = append(src, b)
		}
		sortBlocks(src)

		p := newProject(name)
		if err := tx.Set(f.project(p.ID), p); err != nil {
			return err
		}
		if len(cats.Categories) > 0 {
			if err := tx.Set(f.metaDoc(p.ID, metaCategories), cats); err != nil {
				return err
			}
		}
		for _, b := range src {
			nb := copyForDuplicate(b, copyStructure)
			ref := f.blocks(p.ID).NewDoc()
			copied := models.Block{
				ID:          ref.ID,
				Title:       nb.Title,
				Description: nb.Description,
				Level:       nb.Level,
				Order:       *nb.Order,
				Category:    nb.Category,
			}
			if err := tx.Set(ref, copied); err != nil {
				return err
			}
		}
		out = p
		return nil
	})
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, f.fail("duplicate_project", err)
	}
	return &out, nil
}

// Ping reads a sentinel document; a NotFound answer still proves the
// backend is reachable.
func (f *Firestore) Ping(ctx context.Context) error {
	_, err := f.client.Collection(colProjects).Doc("_ping").Get(ctx)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("storage: firestore ping: %w", err)
	}
	return nil
}

func (f *Firestore) Close() error {
	return f.client.Close()
}
