// Package mcpserver exposes ThinkBlock planning tools to LLM clients over the
// Model Context Protocol (stdio transport).
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/thinkblock/internal/apperr"
	"github.com/starford/thinkblock/internal/models"
	"github.com/starford/thinkblock/internal/planservice"
)

const levelsURI = "thinkblock://levels"

// Server wraps the MCP server with ThinkBlock tools.
type Server struct {
	mcp *server.MCPServer
	svc *planservice.Service
}

// New creates a new MCP server with all ThinkBlock tools registered.
func New(svc *planservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"ThinkBlock",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_projects",
		mcp.WithDescription("List all projects, most recently updated first."),
	), s.listProjects)

	s.mcp.AddTool(mcp.NewTool("list_blocks",
		mcp.WithDescription("List the blocks of a project sorted by level, then order."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project id")),
	), s.listBlocks)

	s.mcp.AddTool(mcp.NewTool("create_block",
		mcp.WithDescription("Create a block in a project. The block is appended to its level. "+
			"Read the level semantics first via the thinkblock://levels resource."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project id")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Short block title")),
		mcp.WithString("description", mcp.Description("What the block delivers")),
		mcp.WithNumber("level", mcp.Description("Level -1..5 (default -1, unplaced)")),
		mcp.WithString("category", mcp.Description("Optional category name")),
	), s.createBlock)

	s.mcp.AddTool(mcp.NewTool("update_block_level",
		mcp.WithDescription("Move a block to another level."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project id")),
		mcp.WithString("block_id", mcp.Required(), mcp.Description("Block id")),
		mcp.WithNumber("level", mcp.Required(), mcp.Description("Target level -1..5")),
	), s.updateBlockLevel)

	s.mcp.AddTool(mcp.NewTool("get_categories",
		mcp.WithDescription("List the category names used by a project."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project id")),
	), s.getCategories)

	s.mcp.AddResource(
		mcp.NewResource(levelsURI, "Level Semantics",
			mcp.WithResourceDescription("What each ThinkBlock level means and how blocks are placed."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readLevelsResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// toolError hides storage details from the client; other errors carry
// user-facing text already.
func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrStorage) {
		return mcp.NewToolResultError("storage error")
	}
	return mcp.NewToolResultError(err.Error())
}

func levelArg(v float64) (int, error) {
	lvl := int(v)
	if float64(lvl) != v || lvl < models.Unplaced || lvl > models.MaxLevel {
		return 0, fmt.Errorf("level must be an integer between %d and %d", models.Unplaced, models.MaxLevel)
	}
	return lvl, nil
}

func (s *Server) listProjects(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := s.svc.ListProjects(ctx)
	if err != nil {
		return toolError(err), nil
	}
	if projects == nil {
		projects = []models.Project{}
	}
	return jsonResult(projects)
}

func (s *Server) listBlocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := req.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	blocks, err := s.svc.ListBlocks(ctx, projectID)
	if err != nil {
		return toolError(err), nil
	}
	if blocks == nil {
		blocks = []models.Block{}
	}
	return jsonResult(blocks)
}

func (s *Server) createBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := req.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	level, err := levelArg(req.GetFloat("level", float64(models.Unplaced)))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	in := models.NewBlock{
		Title:       title,
		Description: req.GetString("description", ""),
		Level:       level,
	}
	if c := req.GetString("category", ""); c != "" {
		in.Category = &c
	}

	b, err := s.svc.CreateBlock(ctx, projectID, in)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(b)
}

func (s *Server) updateBlockLevel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := req.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	blockID, err := req.RequireString("block_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireFloat("level")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	level, err := levelArg(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	b, err := s.svc.UpdateBlock(ctx, projectID, blockID, models.BlockPatch{Level: &level})
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(b)
}

func (s *Server) getCategories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := req.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cats, err := s.svc.Categories(ctx, projectID)
	if err != nil {
		return toolError(err), nil
	}
	if cats == nil {
		cats = []string{}
	}
	return jsonResult(cats)
}

func (s *Server) readLevelsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      levelsURI,
			MIMEType: "text/markdown",
			Text:     LevelsContract,
		},
	}, nil
}
