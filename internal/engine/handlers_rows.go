package engine

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/nexiath/sovera/internal/permissions"
	"github.com/nexiath/sovera/internal/rows"
	"github.com/nexiath/sovera/internal/store"
)

// rowGate loads the project, checks the permission, the readiness gate and
// the rate quota in one step.
func (e *Engine) rowGate(w http.ResponseWriter, r *http.Request, perm permissions.Permission) (*store.Project, string, bool) {
	project, ok := e.loadProject(w, r)
	if !ok {
		return nil, "", false
	}
	if _, ok := e.authorize(w, r, project, perm); !ok {
		return nil, "", false
	}
	if !e.requireReady(w, project) || !e.allowRate(w, r, project) {
		return nil, "", false
	}
	return project, mux.Vars(r)["table"], true
}

func (e *Engine) handleInsertRow(w http.ResponseWriter, r *http.Request) {
	project, table, ok := e.rowGate(w, r, permissions.PermDataCreate)
	if !ok {
		return
	}

	var values rows.Row
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Request body must be a JSON object")
		return
	}

	row, err := e.rowAccess.Insert(r.Context(), project.ID, project.DBName, table, values)
	if err != nil {
		e.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

func (e *Engine) handleListRows(w http.ResponseWriter, r *http.Request) {
	project, table, ok := e.rowGate(w, r, permissions.PermDataRead)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	result, err := e.rowAccess.List(r.Context(), project.DBName, table, limit, offset)
	if err != nil {
		e.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rows":   result,
		"count":  len(result),
		"offset": offset,
	})
}

func (e *Engine) handleGetRow(w http.ResponseWriter, r *http.Request) {
	project, table, ok := e.rowGate(w, r, permissions.PermDataRead)
	if !ok {
		return
	}

	row, err := e.rowAccess.Get(r.Context(), project.DBName, table, mux.Vars(r)["rowID"])
	if err != nil {
		e.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (e *Engine) handleUpdateRow(w http.ResponseWriter, r *http.Request) {
	project, table, ok := e.rowGate(w, r, permissions.PermDataUpdate)
	if !ok {
		return
	}

	var values rows.Row
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Request body must be a JSON object")
		return
	}

	row, err := e.rowAccess.Update(r.Context(), project.ID, project.DBName, table,
		mux.Vars(r)["rowID"], values)
	if err != nil {
		e.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (e *Engine) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	project, table, ok := e.rowGate(w, r, permissions.PermDataDelete)
	if !ok {
		return
	}

	err := e.rowAccess.Delete(r.Context(), project.ID, project.DBName, table, mux.Vars(r)["rowID"])
	if err != nil {
		e.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Message: "Row deleted", Success: true})
}
