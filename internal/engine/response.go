package engine

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nexiath/sovera/internal/rows"
	"github.com/nexiath/sovera/internal/schema"
	"github.com/nexiath/sovera/internal/store"
)

// ErrorResponse is the envelope for all error replies.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// SuccessResponse is the envelope for replies that carry no resource body.
type SuccessResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
		Status:  status,
	})
}

// writeDomainError maps typed errors from the domain layers onto status
// codes. Anything unrecognized is logged with its full detail and returned
// as a 500 with a generic message so internal details never leak to clients.
func (e *Engine) writeDomainError(w http.ResponseWriter, err error) {
	var (
		validationErr *schema.ValidationError
		existsErr     *schema.TableExistsError
		notFoundErr   *schema.TableNotFoundError
		unknownCols   *rows.UnknownColumnError
		missingCols   *rows.MissingColumnsError
		coercionErr   *rows.CoercionError
		rowNotFound   *rows.RowNotFoundError
		noPrimaryKey  *rows.NoPrimaryKeyError
	)

	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, "validation_failed", validationErr.Error())
	case errors.As(err, &existsErr):
		writeError(w, http.StatusConflict, "table_exists", existsErr.Error())
	case errors.As(err, &notFoundErr):
		writeError(w, http.StatusNotFound, "table_not_found", notFoundErr.Error())
	case errors.As(err, &unknownCols):
		writeError(w, http.StatusBadRequest, "unknown_columns", unknownCols.Error())
	case errors.As(err, &missingCols):
		writeError(w, http.StatusBadRequest, "missing_columns", missingCols.Error())
	case errors.As(err, &coercionErr):
		writeError(w, http.StatusBadRequest, "invalid_value", coercionErr.Error())
	case errors.As(err, &rowNotFound):
		writeError(w, http.StatusNotFound, "row_not_found", rowNotFound.Error())
	case errors.As(err, &noPrimaryKey):
		writeError(w, http.StatusBadRequest, "no_primary_key", noPrimaryKey.Error())
	case errors.Is(err, store.ErrProjectNotFound):
		writeError(w, http.StatusNotFound, "project_not_found", "Project not found")
	case errors.Is(err, store.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", "User not found")
	case errors.Is(err, store.ErrMembershipNotFound):
		writeError(w, http.StatusNotFound, "membership_not_found", "Membership not found")
	case errors.Is(err, store.ErrDuplicateMember):
		writeError(w, http.StatusConflict, "duplicate_member", "User is already a member of this project")
	default:
		e.logger.Errorf("Unhandled internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}
