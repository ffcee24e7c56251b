package engine

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nexiath/sovera/internal/permissions"
	"github.com/nexiath/sovera/internal/schema"
)

func (e *Engine) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	project, ok := e.loadProject(w, r)
	if !ok {
		return
	}
	if _, ok := e.authorize(w, r, project, permissions.PermTablesCreate); !ok {
		return
	}
	if !e.requireReady(w, project) || !e.allowRate(w, r, project) {
		return
	}

	var spec schema.TableSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Request body must be valid JSON")
		return
	}

	info, err := e.catalog.CreateTable(r.Context(), project.DBName, &spec)
	if err != nil {
		e.writeDomainError(w, err)
		return
	}

	// CreateTable normalized the spec in place, so the DDL rendered here is
	// exactly what ran. Returned for audit.
	writeJSON(w, http.StatusCreated, map[string]any{
		"table":        info.Name,
		"column_count": len(info.Columns),
		"columns":      info.Columns,
		"created_at":   time.Now().UTC().Format(time.RFC3339),
		"ddl":          schema.BuildCreateTable(&spec),
	})
}

func (e *Engine) handleListTables(w http.ResponseWriter, r *http.Request) {
	project, ok := e.loadProject(w, r)
	if !ok {
		return
	}
	if _, ok := e.authorize(w, r, project, permissions.PermTablesRead); !ok {
		return
	}
	if !e.requireReady(w, project) || !e.allowRate(w, r, project) {
		return
	}

	tables, err := e.catalog.ListTables(r.Context(), project.DBName)
	if err != nil {
		e.writeDomainError(w, err)
		return
	}
	if tables == nil {
		tables = []schema.TableSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (e *Engine) handleGetTable(w http.ResponseWriter, r *http.Request) {
	project, ok := e.loadProject(w, r)
	if !ok {
		return
	}
	if _, ok := e.authorize(w, r, project, permissions.PermTablesRead); !ok {
		return
	}
	if !e.requireReady(w, project) || !e.allowRate(w, r, project) {
		return
	}

	info, err := e.catalog.GetTable(r.Context(), project.DBName, mux.Vars(r)["table"])
	if err != nil {
		e.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (e *Engine) handleDropTable(w http.ResponseWriter, r *http.Request) {
	project, ok := e.loadProject(w, r)
	if !ok {
		return
	}
	if _, ok := e.authorize(w, r, project, permissions.PermTablesDelete); !ok {
		return
	}
	if !e.requireReady(w, project) || !e.allowRate(w, r, project) {
		return
	}

	table := mux.Vars(r)["table"]
	if err := e.catalog.DropTable(r.Context(), project.DBName, table); err != nil {
		e.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Message: "Table dropped", Success: true})
}
