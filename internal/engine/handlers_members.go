package engine

import (
	"encoding/json"
	"net/http"

	"github.com/nexiath/sovera/internal/permissions"
)

type inviteMemberRequest struct {
	Email string           `json:"email"`
	Role  permissions.Role `json:"role"`
}

func validMemberRole(role permissions.Role) bool {
	return role == permissions.RoleEditor || role == permissions.RoleViewer
}

func (e *Engine) handleInviteMember(w http.ResponseWriter, r *http.Request) {
	project, ok := e.loadProject(w, r)
	if !ok {
		return
	}
	inviterID, ok := e.authorize(w, r, project, permissions.PermMembersInvite)
	if !ok {
		return
	}

	var req inviteMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Request body must be valid JSON")
		return
	}
	if !validMemberRole(req.Role) {
		writeError(w, http.StatusBadRequest, "invalid_role", "Role must be editor or viewer")
		return
	}

	user, err := e.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		e.writeDomainError(w, err)
		return
	}
	if user.ID == project.OwnerID {
		writeError(w, http.StatusBadRequest, "owner_invite", "The owner cannot be invited")
		return
	}

	membership, err := e.store.InviteMember(r.Context(), project.ID, user.ID, inviterID, req.Role)
	if err != nil {
		e.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, membership)
}

func (e *Engine) handleListMembers(w http.ResponseWriter, r *http.Request) {
	project, ok := e.loadProject(w, r)
	if !ok {
		return
	}
	if _, ok := e.authorize(w, r, project, permissions.PermMembersRead); !ok {
		return
	}

	members, err := e.store.ListMembers(r.Context(), project.ID)
	if err != nil {
		e.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (e *Engine) handleListInvitations(w http.ResponseWriter, r *http.Request) {
	invitations, err := e.store.ListInvitationsForUser(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		e.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invitations)
}

type respondInvitationRequest struct {
	Accept bool `json:"accept"`
}

func (e *Engine) handleRespondInvitation(w http.ResponseWriter, r *http.Request) {
	membershipID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_invitation_id", "Invitation id must be numeric")
		return
	}

	var req respondInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Request body must be valid JSON")
		return
	}

	membership, err := e.store.RespondToInvitation(r.Context(), membershipID,
		userIDFromContext(r.Context()), req.Accept)
	if err != nil {
		e.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, membership)
}

type updateMemberRoleRequest struct {
	Role permissions.Role `json:"role"`
}

func (e *Engine) handleUpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	project, ok := e.loadProject(w, r)
	if !ok {
		return
	}
	if _, ok := e.authorize(w, r, project, permissions.PermMembersUpdate); !ok {
		return
	}
	memberID, ok := pathID(r, "userID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_user_id", "User id must be numeric")
		return
	}

	var req updateMemberRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Request body must be valid JSON")
		return
	}
	if !validMemberRole(req.Role) {
		writeError(w, http.StatusBadRequest, "invalid_role", "Role must be editor or viewer")
		return
	}

	membership, err := e.store.UpdateMemberRole(r.Context(), project.ID, memberID, req.Role)
	if err != nil {
		e.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, membership)
}

func (e *Engine) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	project, ok := e.loadProject(w, r)
	if !ok {
		return
	}
	memberID, ok := pathID(r, "userID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_user_id", "User id must be numeric")
		return
	}

	// Members may always remove themselves; removing anyone else takes the
	// members:remove permission.
	if memberID != userIDFromContext(r.Context()) {
		if _, ok := e.authorize(w, r, project, permissions.PermMembersRemove); !ok {
			return
		}
	}
	if memberID == project.OwnerID {
		writeError(w, http.StatusBadRequest, "owner_remove", "The owner cannot be removed")
		return
	}

	if err := e.store.RemoveMember(r.Context(), project.ID, memberID); err != nil {
		e.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Message: "Member removed", Success: true})
}
