package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/thinkblock/internal/apperr"
	"github.com/starford/thinkblock/internal/models"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

// runProviderSuite exercises the behaviour every backend must share.
func runProviderSuite(t *testing.T, open func(t *testing.T) Provider) {
	ctx := context.Background()

	newProject := func(t *testing.T, p Provider) string {
		t.Helper()
		proj, err := p.CreateProject(ctx, "P")
		require.NoError(t, err)
		return proj.ID
	}

	t.Run("order assigned per level and listing sorted", func(t *testing.T) {
		p := open(t)
		pid := newProject(t, p)

		a, err := p.CreateBlock(ctx, pid, models.NewBlock{Title: "A", Level: 0})
		require.NoError(t, err)
		b, err := p.CreateBlock(ctx, pid, models.NewBlock{Title: "B", Level: 0})
		require.NoError(t, err)
		c, err := p.CreateBlock(ctx, pid, models.NewBlock{Title: "C", Level: 1})
		require.NoError(t, err)

		assert.Equal(t, 0, a.Order)
		assert.Equal(t, 1, b.Order)
		assert.Equal(t, 0, c.Order)
		assert.NotEqual(t, a.ID, b.ID)

		blocks, err := p.ListBlocks(ctx, pid)
		require.NoError(t, err)
		require.Len(t, blocks, 3)
		assert.Equal(t, []string{"A", "B", "C"}, titles(blocks))
		for i := 1; i < len(blocks); i++ {
			assert.False(t, models.Less(blocks[i], blocks[i-1]), "blocks out of order at %d", i)
		}
	})

	t.Run("explicit order kept", func(t *testing.T) {
		p := open(t)
		pid := newProject(t, p)
		b, err := p.CreateBlock(ctx, pid, models.NewBlock{Title: "X", Level: 2, Order: intPtr(7), Category: strPtr("infra")})
		require.NoError(t, err)
		assert.Equal(t, 7, b.Order)

		got, err := p.GetBlock(ctx, pid, b.ID)
		require.NoError(t, err)
		assert.Equal(t, "infra", got.CategoryName())
		assert.Equal(t, 2, got.Level)
	})

	t.Run("order not compacted after delete", func(t *testing.T) {
		p := open(t)
		pid := newProject(t, p)
		a, _ := p.CreateBlock(ctx, pid, models.NewBlock{Title: "A"})
		_, _ = p.CreateBlock(ctx, pid, models.NewBlock{Title: "B"})
		ok, err := p.DeleteBlock(ctx, pid, a.ID)
		require.NoError(t, err)
		require.True(t, ok)

		c, err := p.CreateBlock(ctx, pid, models.NewBlock{Title: "C"})
		require.NoError(t, err)
		assert.Equal(t, 1, c.Order, "duplicate order is expected after a delete")
	})

	t.Run("get missing block", func(t *testing.T) {
		p := open(t)
		pid := newProject(t, p)
		_, err := p.GetBlock(ctx, pid, "missing")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("update unknown block writes nothing", func(t *testing.T) {
		p := open(t)
		pid := newProject(t, p)
		_, err := p.UpdateBlock(ctx, pid, "missing", models.BlockPatch{Title: strPtr("x")})
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		blocks, err := p.ListBlocks(ctx, pid)
		require.NoError(t, err)
		assert.Empty(t, blocks)
	})

	t.Run("update drops nil fields", func(t *testing.T) {
		p := open(t)
		pid := newProject(t, p)
		b, err := p.CreateBlock(ctx, pid, models.NewBlock{
			Title: "T", Description: "D", Level: 1, Category: strPtr("design"),
		})
		require.NoError(t, err)

		got, err := p.UpdateBlock(ctx, pid, b.ID, models.BlockPatch{Level: intPtr(3)})
		require.NoError(t, err)
		assert.Equal(t, 3, got.Level)
		assert.Equal(t, "T", got.Title)
		assert.Equal(t, "D", got.Description)
		assert.Equal(t, "design", got.CategoryName())
		assert.Equal(t, b.Order, got.Order)

		got, err = p.UpdateBlock(ctx, pid, b.ID, models.BlockPatch{Dependencies: []string{"x", "y"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"x", "y"}, got.Dependencies)

		again, err := p.GetBlock(ctx, pid, b.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, again.Level)
		assert.Equal(t, []string{"x", "y"}, again.Dependencies)
	})

	t.Run("level range not enforced", func(t *testing.T) {
		p := open(t)
		pid := newProject(t, p)
		b, err := p.CreateBlock(ctx, pid, models.NewBlock{Title: "odd", Level: 42})
		require.NoError(t, err)
		assert.Equal(t, 42, b.Level)
	})

	t.Run("delete block", func(t *testing.T) {
		p := open(t)
		pid := newProject(t, p)
		b, err := p.CreateBlock(ctx, pid, models.NewBlock{Title: "A"})
		require.NoError(t, err)

		ok, err := p.DeleteBlock(ctx, pid, b.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = p.DeleteBlock(ctx, pid, b.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("metadata defaults and replace", func(t *testing.T) {
		p := open(t)
		pid := newProject(t, p)

		cats, err := p.GetCategories(ctx, pid)
		require.NoError(t, err)
		assert.Empty(t, cats)
		assert.NotNil(t, cats)

		palette, err := p.GetConnectionPalette(ctx, pid)
		require.NoError(t, err)
		assert.Equal(t, []string{models.DefaultConnectionColor}, palette)

		_, err = p.SetCategories(ctx, pid, []string{"b", "a", "a"})
		require.NoError(t, err)
		cats, err = p.GetCategories(ctx, pid)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a", "a"}, cats, "store does not dedupe")

		_, err = p.SetConnectionPalette(ctx, pid, []string{"#111", "#222"})
		require.NoError(t, err)
		palette, err = p.GetConnectionPalette(ctx, pid)
		require.NoError(t, err)
		assert.Equal(t, []string{"#111", "#222"}, palette)

		colors := map[string]models.CategoryColor{"design": {Background: "#fff", Text: "#000"}}
		_, err = p.SetCategoryColors(ctx, pid, colors)
		require.NoError(t, err)
		got, err := p.GetCategoryColors(ctx, pid)
		require.NoError(t, err)
		assert.Equal(t, colors, got)
	})

	t.Run("dependency colors", func(t *testing.T) {
		p := open(t)
		pid := newProject(t, p)

		removed, err := p.RemoveDependencyColor(ctx, pid, "a", "b")
		require.NoError(t, err)
		assert.Empty(t, removed)

		_, err = p.SetDependencyColor(ctx, pid, "a", "b", "#f00")
		require.NoError(t, err)
		colors, err := p.SetDependencyColor(ctx, pid, "a", "c", "#0f0")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"a_b": "#f00", "a_c": "#0f0"}, colors)

		colors, err = p.RemoveDependencyColor(ctx, pid, "a", "b")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"a_c": "#0f0"}, colors)

		colors, err = p.GetDependencyColors(ctx, pid)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"a_c": "#0f0"}, colors)
	})

	t.Run("projects", func(t *testing.T) {
		p := open(t)
		first, err := p.CreateProject(ctx, "first")
		require.NoError(t, err)
		second, err := p.CreateProject(ctx, "second")
		require.NoError(t, err)

		_, err = p.GetProject(ctx, "missing")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		_, err = p.UpdateProject(ctx, "missing", models.ProjectPatch{Name: strPtr("x")})
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		updated, err := p.UpdateProject(ctx, first.ID, models.ProjectPatch{ProjectAnalysis: strPtr("analysis")})
		require.NoError(t, err)
		assert.Equal(t, "first", updated.Name)
		assert.Equal(t, "analysis", updated.ProjectAnalysis)
		assert.True(t, updated.UpdatedAt.After(first.UpdatedAt))

		list, err := p.ListProjects(ctx)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(list), 2)
		assert.Equal(t, first.ID, list[0].ID, "most recently updated first")

		got, err := p.GetProject(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, "second", got.Name)
	})

	t.Run("delete project cascades", func(t *testing.T) {
		p := open(t)
		pid := newProject(t, p)
		_, err := p.CreateBlock(ctx, pid, models.NewBlock{Title: "A"})
		require.NoError(t, err)
		_, err = p.SetCategories(ctx, pid, []string{"x"})
		require.NoError(t, err)
		_, err = p.SetDependencyColor(ctx, pid, "a", "b", "#000")
		require.NoError(t, err)

		ok, err := p.DeleteProject(ctx, pid)
		require.NoError(t, err)
		assert.True(t, ok)

		blocks, err := p.ListBlocks(ctx, pid)
		require.NoError(t, err)
		assert.Empty(t, blocks)
		cats, err := p.GetCategories(ctx, pid)
		require.NoError(t, err)
		assert.Empty(t, cats)
		colors, err := p.GetDependencyColors(ctx, pid)
		require.NoError(t, err)
		assert.Empty(t, colors)
		_, err = p.GetProject(ctx, pid)
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		ok, err = p.DeleteProject(ctx, pid)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	seed := func(t *testing.T, p Provider) string {
		t.Helper()
		pid := newProject(t, p)
		_, err := p.SetCategories(ctx, pid, []string{"infra", "ui"})
		require.NoError(t, err)
		_, err = p.CreateBlock(ctx, pid, models.NewBlock{Title: "A", Description: "a", Level: 0, Category: strPtr("infra")})
		require.NoError(t, err)
		_, err = p.CreateBlock(ctx, pid, models.NewBlock{Title: "B", Description: "b", Level: 0})
		require.NoError(t, err)
		_, err = p.CreateBlock(ctx, pid, models.NewBlock{Title: "C", Description: "c", Level: 3, Category: strPtr("ui")})
		require.NoError(t, err)
		return pid
	}

	t.Run("duplicate resets structure", func(t *testing.T) {
		p := open(t)
		src := seed(t, p)

		dup, err := p.DuplicateProject(ctx, src, "copy", false)
		require.NoError(t, err)
		assert.NotEqual(t, src, dup.ID)
		assert.Equal(t, "copy", dup.Name)

		blocks, err := p.ListBlocks(ctx, dup.ID)
		require.NoError(t, err)
		require.Len(t, blocks, 3)
		for _, b := range blocks {
			assert.Equal(t, models.Unplaced, b.Level)
			assert.Equal(t, 0, b.Order)
		}
		assert.ElementsMatch(t, []string{"A", "B", "C"}, titles(blocks))
		byTitle := indexByTitle(blocks)
		assert.Equal(t, "infra", byTitle["A"].CategoryName())
		assert.Nil(t, byTitle["B"].Category)
		assert.Equal(t, "c", byTitle["C"].Description)

		cats, err := p.GetCategories(ctx, dup.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"infra", "ui"}, cats)
	})

	t.Run("duplicate keeps structure", func(t *testing.T) {
		p := open(t)
		src := seed(t, p)
		srcBlocks, err := p.ListBlocks(ctx, src)
		require.NoError(t, err)

		dup, err := p.DuplicateProject(ctx, src, "copy", true)
		require.NoError(t, err)
		blocks, err := p.ListBlocks(ctx, dup.ID)
		require.NoError(t, err)
		require.Len(t, blocks, len(srcBlocks))
		for i := range blocks {
			assert.Equal(t, srcBlocks[i].Title, blocks[i].Title)
			assert.Equal(t, srcBlocks[i].Level, blocks[i].Level)
			assert.Equal(t, srcBlocks[i].Order, blocks[i].Order)
			assert.NotEqual(t, srcBlocks[i].ID, blocks[i].ID)
		}
	})

	t.Run("duplicate missing source", func(t *testing.T) {
		p := open(t)
		before, err := p.ListProjects(ctx)
		require.NoError(t, err)

		_, err = p.DuplicateProject(ctx, "missing", "copy", true)
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		after, err := p.ListProjects(ctx)
		require.NoError(t, err)
		assert.Len(t, after, len(before), "no partial project left behind")
	})
}

func titles(bs []models.Block) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.Title
	}
	return out
}

func indexByTitle(bs []models.Block) map[string]models.Block {
	out := make(map[string]models.Block, len(bs))
	for _, b := range bs {
		out[b.Title] = b
	}
	return out
}

func TestMemoryProvider(t *testing.T) {
	runProviderSuite(t, func(t *testing.T) Provider {
		return NewMemory()
	})
}

func TestSQLiteProvider(t *testing.T) {
	runProviderSuite(t, func(t *testing.T) Provider {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "thinkblock.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestFirestoreProvider(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	runProviderSuite(t, func(t *testing.T) Provider {
		f, err := OpenFirestore(context.Background(), "thinkblock-test", "", nil)
		require.NoError(t, err)
		t.Cleanup(func() { f.Close() })
		return f
	})
}
