package engine

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/nexiath/sovera/internal/permissions"
	"github.com/nexiath/sovera/internal/realtime"
	"github.com/nexiath/sovera/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers cannot set custom headers on websockets; access control
	// happens through the token, not the origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// closeWithReason completes the handshake and immediately closes with an
// application close code, so clients can tell rejection reasons apart.
func closeWithReason(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(5 * time.Second)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	conn.Close()
}

// handleSubscribe upgrades the connection and gates it on project existence,
// data:read permission and completed provisioning. Rejections use websocket
// close codes: 4004 unknown project, 4003 access denied, 4000 not ready.
func (e *Engine) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	token := tokenFromRequest(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing_token", "Authentication required")
		return
	}
	userID, err := e.auth.VerifyToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired token")
		return
	}

	projectID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_project_id", "Project id must be numeric")
		return
	}
	table := mux.Vars(r)["table"]

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	project, err := e.store.GetProject(r.Context(), projectID)
	if err != nil {
		if errors.Is(err, store.ErrProjectNotFound) {
			closeWithReason(conn, realtime.CloseProjectNotFound, "project not found")
		} else {
			closeWithReason(conn, websocket.CloseInternalServerErr, "lookup failed")
		}
		return
	}

	_, allowed, err := e.perms.Check(r.Context(), userID, project.ID, permissions.PermDataRead)
	if err != nil || !allowed {
		closeWithReason(conn, realtime.CloseAccessDenied, "access denied")
		return
	}
	if project.ProvisioningStatus != store.ProvisioningCompleted {
		closeWithReason(conn, realtime.CloseProjectNotReady, "project infrastructure not ready")
		return
	}

	sub := realtime.NewWSSubscriber(conn, func(s *realtime.WSSubscriber) {
		e.hub.Unregister(s)
	})
	e.hub.Register(project.ID, table, sub)

	// Ack so clients know the subscription is live before the first change.
	if err := sub.Send(realtime.Event{
		Type:      "connected",
		TableName: table,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		e.hub.Unregister(sub)
	}
}

func (e *Engine) handleWSStats(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathIDFromQuery(r, "project_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_project_id", "project_id query parameter is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id":  projectID,
		"subscribers": e.hub.Stats(projectID),
	})
}
