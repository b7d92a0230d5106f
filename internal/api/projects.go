package api

import (
	"net/http"

	"github.com/starford/thinkblock/internal/planservice"
)

// ListProjects handles GET /api/projects.
//
//	@Summary	List projects, most recently updated first
//	@Tags		projects
//	@Produce	json
//	@Success	200	{object}	ProjectsResponse
//	@Router		/projects [get]
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.svc.ListProjects(r.Context())
	if err != nil {
		h.writeError(w, r, "list projects", err)
		return
	}
	writeJSON(w, http.StatusOK, ProjectsResponse{Projects: orEmpty(projects)})
}

// CreateProject handles POST /api/projects.
//
//	@Summary	Create a project
//	@Tags		projects
//	@Accept		json
//	@Produce	json
//	@Param		body	body		CreateProjectRequest	true	"Project to create"
//	@Success	201		{object}	ProjectResponse
//	@Failure	400		{object}	errResponse
//	@Router		/projects [post]
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, "create project", err)
		return
	}
	p, err := h.svc.CreateProject(r.Context(), *req.Name)
	if err != nil {
		h.writeError(w, r, "create project", err)
		return
	}
	writeJSON(w, http.StatusCreated, ProjectResponse{Project: p})
}

// GetProject handles GET /api/projects/{projectID}.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetProject(r.Context(), projectID(r))
	if err != nil {
		h.writeError(w, r, "get project", err)
		return
	}
	writeJSON(w, http.StatusOK, ProjectResponse{Project: p})
}

// UpdateProject handles PUT /api/projects/{projectID}.
func (h *Handler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	var req UpdateProjectRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, "update project", err)
		return
	}
	p, err := h.svc.UpdateProject(r.Context(), projectID(r), req.toPatch())
	if err != nil {
		h.writeError(w, r, "update project", err)
		return
	}
	writeJSON(w, http.StatusOK, ProjectResponse{Project: p})
}

// DeleteProject handles DELETE /api/projects/{projectID}.
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id := projectID(r)
	if err := h.svc.DeleteProject(r.Context(), id); err != nil {
		h.writeError(w, r, "delete project", err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Message: "project deleted", ProjectID: id})
}

// DuplicateProject handles POST /api/projects/{projectID}/duplicate.
//
//	@Summary	Copy a project's categories and blocks into a new project
//	@Tags		projects
//	@Accept		json
//	@Produce	json
//	@Param		projectID	path		string					true	"Source project ID"
//	@Param		body		body		DuplicateProjectRequest	true	"New name and copy mode"
//	@Success	201			{object}	ProjectResponse
//	@Failure	404			{object}	errResponse
//	@Router		/projects/{projectID}/duplicate [post]
func (h *Handler) DuplicateProject(w http.ResponseWriter, r *http.Request) {
	var req DuplicateProjectRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, "duplicate project", err)
		return
	}
	p, err := h.svc.DuplicateProject(r.Context(), projectID(r), *req.Name, req.copyStructure())
	if err != nil {
		h.writeError(w, r, "duplicate project", err)
		return
	}
	writeJSON(w, http.StatusCreated, ProjectResponse{Project: p})
}

// GenerateBlocks handles POST /api/projects/{projectID}/ai/generate-blocks.
//
//	@Summary	Ask the model for a block breakdown and store it in the staging list
//	@Tags		ai
//	@Accept		json
//	@Produce	json
//	@Param		body	body		GenerateBlocksRequest	true	"Project description"
//	@Success	200		{object}	GenerateBlocksResponse
//	@Failure	502		{object}	errResponse
//	@Router		/projects/{projectID}/ai/generate-blocks [post]
func (h *Handler) GenerateBlocks(w http.ResponseWriter, r *http.Request) {
	var req GenerateBlocksRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, "generate blocks", err)
		return
	}
	res, err := h.svc.GenerateBlocks(r.Context(), projectID(r), planservice.GenerateRequest{
		ProjectOverview: *req.ProjectOverview,
		CurrentStatus:   *req.CurrentStatus,
		Problems:        *req.Problems,
		AdditionalInfo:  req.AdditionalInfo,
	})
	if err != nil {
		h.writeError(w, r, "generate blocks", err)
		return
	}
	writeJSON(w, http.StatusOK, GenerateBlocksResponse{Blocks: orEmpty(res.Blocks), ProjectAnalysis: res.ProjectAnalysis})
}

// ArrangeBlocks handles POST /api/projects/{projectID}/ai/arrange-blocks.
//
//	@Summary	Ask the model to place blocks on levels
//	@Tags		ai
//	@Accept		json
//	@Produce	json
//	@Param		body	body		ArrangeBlocksRequest	true	"Blocks to arrange"
//	@Success	200		{object}	ArrangeBlocksResponse
//	@Failure	400		{object}	errResponse
//	@Failure	502		{object}	errResponse
//	@Router		/projects/{projectID}/ai/arrange-blocks [post]
func (h *Handler) ArrangeBlocks(w http.ResponseWriter, r *http.Request) {
	var req ArrangeBlocksRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, "arrange blocks", err)
		return
	}
	res, err := h.svc.ArrangeBlocks(r.Context(), projectID(r), req.BlockIDs)
	if err != nil {
		h.writeError(w, r, "arrange blocks", err)
		return
	}
	writeJSON(w, http.StatusOK, ArrangeBlocksResponse{Blocks: orEmpty(res.Blocks), Reasoning: res.Reasoning})
}
