package engine

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/nexiath/sovera/internal/permissions"
	"github.com/nexiath/sovera/internal/provisioning"
	"github.com/nexiath/sovera/internal/ratelimit"
	"github.com/nexiath/sovera/internal/realtime"
	"github.com/nexiath/sovera/internal/rows"
	"github.com/nexiath/sovera/internal/schema"
	"github.com/nexiath/sovera/internal/store"
	"github.com/nexiath/sovera/pkg/health"
	"github.com/nexiath/sovera/pkg/logger"
)

// Engine bundles the domain components behind the HTTP surface.
type Engine struct {
	logger      *logger.Logger
	store       *store.Store
	perms       *permissions.Engine
	provisioner *provisioning.Provisioner
	catalog     *schema.Engine
	rowAccess   *rows.Access
	hub         *realtime.Hub
	limiter     *ratelimit.Limiter
	auth        *Authenticator
	health      *health.Checker
}

// Config carries the engine's collaborators.
type Config struct {
	Logger      *logger.Logger
	Store       *store.Store
	Permissions *permissions.Engine
	Provisioner *provisioning.Provisioner
	Catalog     *schema.Engine
	RowAccess   *rows.Access
	Hub         *realtime.Hub
	Limiter     *ratelimit.Limiter
	Auth        *Authenticator
	Health      *health.Checker
}

// New creates the engine.
func New(cfg Config) *Engine {
	return &Engine{
		logger:      cfg.Logger,
		store:       cfg.Store,
		perms:       cfg.Permissions,
		provisioner: cfg.Provisioner,
		catalog:     cfg.Catalog,
		rowAccess:   cfg.RowAccess,
		hub:         cfg.Hub,
		limiter:     cfg.Limiter,
		auth:        cfg.Auth,
		health:      cfg.Health,
	}
}

// pathID parses a numeric path variable.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id, err == nil
}

// pathIDFromQuery parses a numeric query parameter.
func pathIDFromQuery(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
}

// loadProject resolves the {id} path variable to a project record, writing
// the error response itself on failure.
func (e *Engine) loadProject(w http.ResponseWriter, r *http.Request) (*store.Project, bool) {
	projectID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_project_id", "Project id must be numeric")
		return nil, false
	}

	project, err := e.store.GetProject(r.Context(), projectID)
	if err != nil {
		e.writeDomainError(w, err)
		return nil, false
	}
	return project, true
}

// authorize verifies the caller holds the permission on the project. It
// writes the error response itself on failure. Reads gate exactly like
// mutations; there is no bypass.
func (e *Engine) authorize(w http.ResponseWriter, r *http.Request, project *store.Project, perm permissions.Permission) (int64, bool) {
	userID := userIDFromContext(r.Context())

	role, allowed, err := e.perms.Check(r.Context(), userID, project.ID, perm)
	if err != nil {
		e.writeDomainError(w, err)
		return userID, false
	}
	if !allowed {
		if role == permissions.RoleNone {
			writeError(w, http.StatusForbidden, "access_denied", "You do not have access to this project")
		} else {
			writeError(w, http.StatusForbidden, "permission_denied",
				"Your role does not allow this operation")
		}
		return userID, false
	}
	return userID, true
}

// requireReady gates schema and row operations on completed provisioning.
func (e *Engine) requireReady(w http.ResponseWriter, project *store.Project) bool {
	if project.ProvisioningStatus != store.ProvisioningCompleted {
		writeError(w, http.StatusBadRequest, "infrastructure_not_ready",
			"Project infrastructure is not ready")
		return false
	}
	return true
}

// allowRate counts the request against the project quota.
func (e *Engine) allowRate(w http.ResponseWriter, r *http.Request, project *store.Project) bool {
	allowed, remaining := e.limiter.Allow(r.Context(), project.ID, project.APIRateLimit)
	if !allowed {
		writeError(w, http.StatusTooManyRequests, "rate_limited",
			"Project request quota exceeded")
		return false
	}
	if remaining > 0 {
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	}
	return true
}
