package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/nexiath/sovera/internal/permissions"
	"github.com/nexiath/sovera/internal/provisioning"
	"github.com/nexiath/sovera/internal/store"
)

// Default quotas for new projects.
const (
	defaultMaxItems       = 1000
	defaultStorageLimitMB = 500
	defaultAPIRateLimit   = 1000
)

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (e *Engine) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Request body must be valid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_name", "Project name is required")
		return
	}

	names := provisioning.GenerateNames(req.Name)
	project := &store.Project{
		Name:           req.Name,
		Slug:           names.Slug,
		Description:    req.Description,
		APIKey:         strings.ReplaceAll(uuid.New().String(), "-", ""),
		DBName:         names.DBName,
		BucketName:     names.BucketName,
		MaxItems:       defaultMaxItems,
		StorageLimitMB: defaultStorageLimitMB,
		APIRateLimit:   defaultAPIRateLimit,
		OwnerID:        userIDFromContext(r.Context()),
	}

	created, err := e.store.CreateProject(r.Context(), project)
	if err != nil {
		e.writeDomainError(w, err)
		return
	}

	// Infrastructure comes up in the background; clients poll the
	// provisioning endpoint until the project turns ready.
	go e.provisionAsync(created.ID, names)

	writeJSON(w, http.StatusCreated, created)
}

func (e *Engine) provisionAsync(projectID int64, names provisioning.Names) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	status := store.ProvisioningCompleted
	if err := e.provisioner.Provision(ctx, names); err != nil {
		e.logger.Errorf("Provisioning failed for project %d: %v", projectID, err)
		status = store.ProvisioningFailed
	}
	if err := e.store.SetProvisioningStatus(ctx, projectID, status); err != nil {
		e.logger.Errorf("Failed to record provisioning status for project %d: %v", projectID, err)
	}
}

func (e *Engine) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := e.store.ListProjectsForUser(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		e.writeDomainError(w, err)
		return
	}
	if projects == nil {
		projects = []*store.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (e *Engine) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, ok := e.loadProject(w, r)
	if !ok {
		return
	}
	if _, ok := e.authorize(w, r, project, permissions.PermProjectRead); !ok {
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// handleGetProjectBySlug resolves a project by its slug. Slugs are what the
// generated resource names embed, so operators can go from a database or
// bucket name back to the project.
func (e *Engine) handleGetProjectBySlug(w http.ResponseWriter, r *http.Request) {
	project, err := e.store.GetProjectBySlug(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		e.writeDomainError(w, err)
		return
	}
	if _, ok := e.authorize(w, r, project, permissions.PermProjectRead); !ok {
		return
	}
	writeJSON(w, http.StatusOK, project)
}

type updateProjectRequest struct {
	Name           *string `json:"name"`
	Description    *string `json:"description"`
	MaxItems       *int    `json:"max_items"`
	StorageLimitMB *int    `json:"storage_limit_mb"`
	APIRateLimit   *int    `json:"api_rate_limit"`
	IsPublic       *bool   `json:"is_public"`
}

func (e *Engine) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	project, ok := e.loadProject(w, r)
	if !ok {
		return
	}
	if _, ok := e.authorize(w, r, project, permissions.PermProjectUpdate); !ok {
		return
	}

	var req updateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Request body must be valid JSON")
		return
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			writeError(w, http.StatusBadRequest, "invalid_name", "Project name cannot be empty")
			return
		}
		project.Name = name
	}
	if req.Description != nil {
		project.Description = *req.Description
	}
	if req.MaxItems != nil {
		project.MaxItems = *req.MaxItems
	}
	if req.StorageLimitMB != nil {
		project.StorageLimitMB = *req.StorageLimitMB
	}
	if req.APIRateLimit != nil {
		project.APIRateLimit = *req.APIRateLimit
	}
	if req.IsPublic != nil {
		project.IsPublic = *req.IsPublic
	}

	updated, err := e.store.UpdateProject(r.Context(), project)
	if err != nil {
		e.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (e *Engine) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	project, ok := e.loadProject(w, r)
	if !ok {
		return
	}
	if _, ok := e.authorize(w, r, project, permissions.PermProjectDelete); !ok {
		return
	}

	if err := e.store.SetProvisioningStatus(r.Context(), project.ID, store.ProvisioningDeleting); err != nil {
		e.writeDomainError(w, err)
		return
	}

	names := provisioning.Names{DBName: project.DBName, BucketName: project.BucketName}
	cleaned := e.provisioner.Cleanup(r.Context(), names)
	if !cleaned {
		// The record stays in deleting state so the teardown can be retried.
		writeError(w, http.StatusInternalServerError, "cleanup_failed",
			"Failed to tear down project infrastructure")
		return
	}

	if err := e.store.DeleteProject(r.Context(), project.ID); err != nil {
		e.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{
		Message: "Project deleted",
		Success: true,
	})
}

func (e *Engine) handleProvisioningStatus(w http.ResponseWriter, r *http.Request) {
	project, ok := e.loadProject(w, r)
	if !ok {
		return
	}
	if _, ok := e.authorize(w, r, project, permissions.PermProjectRead); !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": project.ID,
		"status":     project.ProvisioningStatus,
		"db_name":    project.DBName,
		"bucket":     project.BucketName,
	})
}
