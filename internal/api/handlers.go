package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/thinkblock/internal/planservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *planservice.Service
	dev bool
}

// NewHandler creates a new Handler. With dev set, 5xx bodies carry the
// underlying error text.
func NewHandler(svc *planservice.Service, dev bool) *Handler {
	return &Handler{svc: svc, dev: dev}
}

func projectID(r *http.Request) string { return chi.URLParam(r, "projectID") }

func blockID(r *http.Request) string { return chi.URLParam(r, "blockID") }

// ListBlocks handles GET /api/projects/{projectID}/blocks.
//
//	@Summary	List a project's blocks sorted by level and order
//	@Tags		blocks
//	@Produce	json
//	@Param		projectID	path		string	true	"Project ID"
//	@Success	200			{object}	BlocksResponse
//	@Router		/projects/{projectID}/blocks [get]
func (h *Handler) ListBlocks(w http.ResponseWriter, r *http.Request) {
	blocks, err := h.svc.ListBlocks(r.Context(), projectID(r))
	if err != nil {
		h.writeError(w, r, "list blocks", err)
		return
	}
	writeJSON(w, http.StatusOK, BlocksResponse{Blocks: orEmpty(blocks)})
}

// CreateBlock handles POST /api/projects/{projectID}/blocks.
//
//	@Summary	Create a block
//	@Tags		blocks
//	@Accept		json
//	@Produce	json
//	@Param		projectID	path		string				true	"Project ID"
//	@Param		body		body		CreateBlockRequest	true	"Block to create"
//	@Success	201			{object}	BlockResponse
//	@Failure	400			{object}	errResponse
//	@Router		/projects/{projectID}/blocks [post]
func (h *Handler) CreateBlock(w http.ResponseWriter, r *http.Request) {
	var req CreateBlockRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, "create block", err)
		return
	}
	b, err := h.svc.CreateBlock(r.Context(), projectID(r), req.toModel())
	if err != nil {
		h.writeError(w, r, "create block", err)
		return
	}
	writeJSON(w, http.StatusCreated, BlockResponse{Block: b})
}

// UpdateBlock handles PUT /api/projects/{projectID}/blocks/{blockID}.
//
//	@Summary	Partially update a block
//	@Tags		blocks
//	@Accept		json
//	@Produce	json
//	@Param		projectID	path		string				true	"Project ID"
//	@Param		blockID		path		string				true	"Block ID"
//	@Param		body		body		UpdateBlockRequest	true	"Fields to change"
//	@Success	200			{object}	BlockResponse
//	@Failure	404			{object}	errResponse
//	@Router		/projects/{projectID}/blocks/{blockID} [put]
func (h *Handler) UpdateBlock(w http.ResponseWriter, r *http.Request) {
	var req UpdateBlockRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, "update block", err)
		return
	}
	b, err := h.svc.UpdateBlock(r.Context(), projectID(r), blockID(r), req.toPatch())
	if err != nil {
		h.writeError(w, r, "update block", err)
		return
	}
	writeJSON(w, http.StatusOK, BlockResponse{Block: b})
}

// DeleteBlock handles DELETE /api/projects/{projectID}/blocks/{blockID}.
//
//	@Summary	Delete a block
//	@Tags		blocks
//	@Produce	json
//	@Param		projectID	path		string	true	"Project ID"
//	@Param		blockID		path		string	true	"Block ID"
//	@Success	200			{object}	DeleteResponse
//	@Failure	404			{object}	errResponse
//	@Router		/projects/{projectID}/blocks/{blockID} [delete]
func (h *Handler) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	id := blockID(r)
	if err := h.svc.DeleteBlock(r.Context(), projectID(r), id); err != nil {
		h.writeError(w, r, "delete block", err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Message: "block deleted", BlockID: id})
}

// AddDependency handles POST /api/projects/{projectID}/blocks/{blockID}/dependencies.
//
//	@Summary	Add a dependency edge, optionally colored
//	@Tags		dependencies
//	@Accept		json
//	@Produce	json
//	@Param		body	body		DependencyRequest	true	"Dependency"
//	@Success	200		{object}	BlockResponse
//	@Failure	404		{object}	errResponse
//	@Router		/projects/{projectID}/blocks/{blockID}/dependencies [post]
func (h *Handler) AddDependency(w http.ResponseWriter, r *http.Request) {
	var req DependencyRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, "add dependency", err)
		return
	}
	b, err := h.svc.AddDependency(r.Context(), projectID(r), blockID(r), req.DependencyID, req.Color)
	if err != nil {
		h.writeError(w, r, "add dependency", err)
		return
	}
	writeJSON(w, http.StatusOK, BlockResponse{Block: b})
}

// RemoveDependency handles DELETE /api/projects/{projectID}/blocks/{blockID}/dependencies/{dependencyID}.
func (h *Handler) RemoveDependency(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.RemoveDependency(r.Context(), projectID(r), blockID(r), chi.URLParam(r, "dependencyID"))
	if err != nil {
		h.writeError(w, r, "remove dependency", err)
		return
	}
	writeJSON(w, http.StatusOK, BlockResponse{Block: b})
}

// DependencyColors handles GET /api/projects/{projectID}/dependency-colors.
func (h *Handler) DependencyColors(w http.ResponseWriter, r *http.Request) {
	colors, err := h.svc.DependencyColors(r.Context(), projectID(r))
	if err != nil {
		h.writeError(w, r, "get dependency colors", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"colors": colors})
}

// Categories handles GET /api/projects/{projectID}/categories.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.svc.Categories(r.Context(), projectID(r))
	if err != nil {
		h.writeError(w, r, "get categories", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": orEmpty(cats)})
}

// SetCategories handles PUT /api/projects/{projectID}/categories.
func (h *Handler) SetCategories(w http.ResponseWriter, r *http.Request) {
	var req CategoriesRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, "update categories", err)
		return
	}
	cats, err := h.svc.SetCategories(r.Context(), projectID(r), req.Categories)
	if err != nil {
		h.writeError(w, r, "update categories", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": orEmpty(cats)})
}

// CategoryColors handles GET /api/projects/{projectID}/category-colors.
func (h *Handler) CategoryColors(w http.ResponseWriter, r *http.Request) {
	colors, err := h.svc.CategoryColors(r.Context(), projectID(r))
	if err != nil {
		h.writeError(w, r, "get category colors", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"colors": colors})
}

// SetCategoryColors handles PUT /api/projects/{projectID}/category-colors.
func (h *Handler) SetCategoryColors(w http.ResponseWriter, r *http.Request) {
	var req CategoryColorsRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, "update category colors", err)
		return
	}
	colors, err := h.svc.SetCategoryColors(r.Context(), projectID(r), req.Colors)
	if err != nil {
		h.writeError(w, r, "update category colors", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"colors": colors})
}

// ConnectionPalette handles GET /api/projects/{projectID}/connection-color-palette.
func (h *Handler) ConnectionPalette(w http.ResponseWriter, r *http.Request) {
	colors, err := h.svc.ConnectionPalette(r.Context(), projectID(r))
	if err != nil {
		h.writeError(w, r, "get connection palette", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"colors": colors})
}

// SetConnectionPalette handles PUT /api/projects/{projectID}/connection-color-palette.
func (h *Handler) SetConnectionPalette(w http.ResponseWriter, r *http.Request) {
	var req PaletteRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, "update connection palette", err)
		return
	}
	colors, err := h.svc.SetConnectionPalette(r.Context(), projectID(r), req.Colors)
	if err != nil {
		h.writeError(w, r, "update connection palette", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"colors": colors})
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
