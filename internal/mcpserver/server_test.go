package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/thinkblock/internal/models"
	"github.com/starford/thinkblock/internal/planservice"
	"github.com/starford/thinkblock/internal/storage"
	"github.com/starford/thinkblock/internal/testutil"
)

func testServer(t *testing.T) (*Server, storage.Provider) {
	t.Helper()
	store := testutil.MemoryStore(t)
	svc := planservice.NewService(store, nil, nil, planservice.Options{})
	return New(svc, "test"), store
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_projects":
		result, err = srv.listProjects(ctx, req)
	case "list_blocks":
		result, err = srv.listBlocks(ctx, req)
	case "create_block":
		result, err = srv.createBlock(ctx, req)
	case "update_block_level":
		result, err = srv.updateBlockLevel(ctx, req)
	case "get_categories":
		result, err = srv.getCategories(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListProjects(t *testing.T) {
	srv, store := testServer(t)

	r := callTool(t, srv, "list_projects", map[string]any{})
	if got := resultText(r); got != "[]" {
		t.Errorf("empty list = %q, want []", got)
	}

	testutil.Project(t, store, "Roadmap")
	r = callTool(t, srv, "list_projects", map[string]any{})
	var projects []models.Project
	if err := json.Unmarshal([]byte(resultText(r)), &projects); err != nil {
		t.Fatal(err)
	}
	if len(projects) != 1 || projects[0].Name != "Roadmap" {
		t.Errorf("projects = %+v", projects)
	}
}

func TestCreateAndListBlocks(t *testing.T) {
	srv, store := testServer(t)
	p := testutil.Project(t, store, "Roadmap")

	r := callTool(t, srv, "create_block", map[string]any{
		"project_id":  p.ID,
		"title":       "Auth",
		"description": "login flow",
		"level":       float64(2),
		"category":    "Backend",
	})
	if r.IsError {
		t.Fatalf("create failed: %s", resultText(r))
	}
	var created models.Block
	if err := json.Unmarshal([]byte(resultText(r)), &created); err != nil {
		t.Fatal(err)
	}
	if created.Level != 2 || created.CategoryName() != "Backend" || created.Description != "login flow" {
		t.Errorf("created = %+v", created)
	}

	// Level defaults to unplaced.
	r = callTool(t, srv, "create_block", map[string]any{"project_id": p.ID, "title": "Idea"})
	if r.IsError {
		t.Fatalf("create failed: %s", resultText(r))
	}

	r = callTool(t, srv, "list_blocks", map[string]any{"project_id": p.ID})
	var blocks []models.Block
	if err := json.Unmarshal([]byte(resultText(r)), &blocks); err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 2 || blocks[0].Title != "Idea" || blocks[0].Level != models.Unplaced {
		t.Errorf("blocks = %+v", blocks)
	}
}

func TestCreateBlockRejectsBadLevel(t *testing.T) {
	srv, store := testServer(t)
	p := testutil.Project(t, store, "Roadmap")

	for _, lvl := range []float64{6, -2, 1.5} {
		r := callTool(t, srv, "create_block", map[string]any{
			"project_id": p.ID,
			"title":      "X",
			"level":      lvl,
		})
		if !r.IsError {
			t.Errorf("level %v accepted", lvl)
		}
	}

	r := callTool(t, srv, "create_block", map[string]any{"project_id": p.ID})
	if !r.IsError {
		t.Error("expected error for missing title")
	}
}

func TestUpdateBlockLevel(t *testing.T) {
	srv, store := testServer(t)
	p := testutil.Project(t, store, "Roadmap")
	b := testutil.Block(t, store, p.ID, "Auth", models.Unplaced)

	r := callTool(t, srv, "update_block_level", map[string]any{
		"project_id": p.ID,
		"block_id":   b.ID,
		"level":      float64(0),
	})
	if r.IsError {
		t.Fatalf("update failed: %s", resultText(r))
	}
	got, err := store.GetBlock(context.Background(), p.ID, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Level != 0 {
		t.Errorf("level = %d, want 0", got.Level)
	}

	r = callTool(t, srv, "update_block_level", map[string]any{
		"project_id": p.ID,
		"block_id":   "missing",
		"level":      float64(1),
	})
	if !r.IsError || !strings.Contains(resultText(r), "not found") {
		t.Errorf("missing block = %v %q", r.IsError, resultText(r))
	}
}

func TestGetCategories(t *testing.T) {
	srv, store := testServer(t)
	p := testutil.Project(t, store, "Roadmap")
	if _, err := store.SetCategories(context.Background(), p.ID, []string{"UI", "Backend"}); err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "get_categories", map[string]any{"project_id": p.ID})
	if got := resultText(r); !strings.Contains(got, `"UI"`) || !strings.Contains(got, `"Backend"`) {
		t.Errorf("categories = %q", got)
	}
}

func TestLevelsResource(t *testing.T) {
	srv, _ := testServer(t)
	contents, err := srv.readLevelsResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != levelsURI || !strings.Contains(tc.Text, "Unplaced") {
		t.Errorf("resource = %+v", contents[0])
	}
}
