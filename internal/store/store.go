package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexiath/sovera/internal/permissions"
)

// Sentinel errors for record lookups.
var (
	ErrProjectNotFound    = errors.New("project not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrDuplicateMember    = errors.New("user is already a member of this project")
)

// ProvisioningStatus tracks the lifecycle of a project's tenant resources.
type ProvisioningStatus string

const (
	ProvisioningPending   ProvisioningStatus = "pending"
	ProvisioningCompleted ProvisioningStatus = "completed"
	ProvisioningFailed    ProvisioningStatus = "failed"
	ProvisioningDeleting  ProvisioningStatus = "deleting"
)

// MembershipStatus is the state of an invitation.
type MembershipStatus string

const (
	MembershipPending  MembershipStatus = "pending"
	MembershipAccepted MembershipStatus = "accepted"
	MembershipRejected MembershipStatus = "rejected"
	MembershipExpired  MembershipStatus = "expired"
)

// User is a platform account.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Project is the control-plane record for a tenant project. DBName and
// BucketName point at the project's isolated resources.
type Project struct {
	ID                 int64              `json:"id"`
	Name               string             `json:"name"`
	Slug               string             `json:"slug"`
	Description        string             `json:"description"`
	APIKey             string             `json:"api_key"`
	DBName             string             `json:"db_name"`
	BucketName         string             `json:"bucket_name"`
	MaxItems           int                `json:"max_items"`
	StorageLimitMB     int                `json:"storage_limit_mb"`
	APIRateLimit       int                `json:"api_rate_limit"`
	IsPublic           bool               `json:"is_public"`
	ProvisioningStatus ProvisioningStatus `json:"provisioning_status"`
	OwnerID            int64              `json:"owner_id"`
	CreatedAt          time.Time          `json:"created_at"`
}

// Membership links a user to a project with a role. Invitations start in the
// pending state and only accepted rows grant access.
type Membership struct {
	ID         int64            `json:"id"`
	ProjectID  int64            `json:"project_id"`
	UserID     int64            `json:"user_id"`
	Role       permissions.Role `json:"role"`
	Status     MembershipStatus `json:"status"`
	InvitedBy  int64            `json:"invited_by"`
	InvitedAt  time.Time        `json:"invited_at"`
	AcceptedAt *time.Time       `json:"accepted_at,omitempty"`
}

// Store persists projects and memberships in the platform database.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store backed by the given platform pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const projectColumns = `id, name, slug, description, api_key, db_name, bucket_name,
	max_items, storage_limit_mb, api_rate_limit, is_public, provisioning_status,
	owner_id, created_at`

func scanProject(row pgx.Row) (*Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.APIKey,
		&p.DBName, &p.BucketName, &p.MaxItems, &p.StorageLimitMB,
		&p.APIRateLimit, &p.IsPublic, &p.ProvisioningStatus, &p.OwnerID,
		&p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}
	return &p, nil
}

// CreateProject inserts a new project record in the pending state. The
// generated resource names must already be assigned by the caller.
func (s *Store) CreateProject(ctx context.Context, p *Project) (*Project, error) {
	query := fmt.Sprintf(`
		INSERT INTO projects (name, slug, description, api_key, db_name, bucket_name,
			max_items, storage_limit_mb, api_rate_limit, is_public, provisioning_status,
			owner_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		RETURNING %s`, projectColumns)

	row := s.pool.QueryRow(ctx, query,
		p.Name, p.Slug, p.Description, p.APIKey, p.DBName, p.BucketName,
		p.MaxItems, p.StorageLimitMB, p.APIRateLimit, p.IsPublic,
		ProvisioningPending, p.OwnerID)

	created, err := scanProject(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return created, nil
}

// GetProject fetches a project by id.
func (s *Store) GetProject(ctx context.Context, projectID int64) (*Project, error) {
	query := fmt.Sprintf("SELECT %s FROM projects WHERE id = $1", projectColumns)
	return scanProject(s.pool.QueryRow(ctx, query, projectID))
}

// GetProjectBySlug fetches a project by its unique slug.
func (s *Store) GetProjectBySlug(ctx context.Context, slug string) (*Project, error) {
	query := fmt.Sprintf("SELECT %s FROM projects WHERE slug = $1", projectColumns)
	return scanProject(s.pool.QueryRow(ctx, query, slug))
}

// ListProjectsForUser returns the projects the user owns or is an accepted
// member of, newest first.
func (s *Store) ListProjectsForUser(ctx context.Context, userID int64) ([]*Project, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT %s FROM projects p
		LEFT JOIN project_memberships m ON m.project_id = p.id
		WHERE p.owner_id = $1 OR (m.user_id = $1 AND m.status = $2)
		ORDER BY p.created_at DESC, p.id DESC`,
		prefixColumns("p", projectColumns))

	rows, err := s.pool.Query(ctx, query, userID, MembershipAccepted)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// UpdateProject persists the mutable project settings.
func (s *Store) UpdateProject(ctx context.Context, p *Project) (*Project, error) {
	query := fmt.Sprintf(`
		UPDATE projects
		SET name = $2, description = $3, max_items = $4, storage_limit_mb = $5,
			api_rate_limit = $6, is_public = $7
		WHERE id = $1
		RETURNING %s`, projectColumns)

	return scanProject(s.pool.QueryRow(ctx, query,
		p.ID, p.Name, p.Description, p.MaxItems, p.StorageLimitMB,
		p.APIRateLimit, p.IsPublic))
}

// SetProvisioningStatus records the tenant resource lifecycle state.
func (s *Store) SetProvisioningStatus(ctx context.Context, projectID int64, status ProvisioningStatus) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE projects SET provisioning_status = $2 WHERE id = $1",
		projectID, status)
	if err != nil {
		return fmt.Errorf("failed to update provisioning status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// DeleteProject removes the project record and its membership rows.
func (s *Store) DeleteProject(ctx context.Context, projectID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM project_memberships WHERE project_id = $1", projectID); err != nil {
		return fmt.Errorf("failed to delete memberships: %w", err)
	}
	tag, err := tx.Exec(ctx, "DELETE FROM projects WHERE id = $1", projectID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProjectNotFound
	}
	return tx.Commit(ctx)
}

// GetUserByEmail looks up a user account by email. Invitations address
// users by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		"SELECT id, email, full_name, is_active, created_at FROM users WHERE email = $1",
		email).Scan(&u.ID, &u.Email, &u.FullName, &u.IsActive, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// GetUser fetches a user account by id.
func (s *Store) GetUser(ctx context.Context, userID int64) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		"SELECT id, email, full_name, is_active, created_at FROM users WHERE id = $1",
		userID).Scan(&u.ID, &u.Email, &u.FullName, &u.IsActive, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

const membershipColumns = `id, project_id, user_id, role, status, invited_by, invited_at, accepted_at`

func scanMembership(row pgx.Row) (*Membership, error) {
	var m Membership
	err := row.Scan(&m.ID, &m.ProjectID, &m.UserID, &m.Role, &m.Status,
		&m.InvitedBy, &m.InvitedAt, &m.AcceptedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMembershipNotFound
		}
		return nil, fmt.Errorf("failed to scan membership: %w", err)
	}
	return &m, nil
}

// InviteMember creates a pending membership row. A user can hold at most one
// membership row per project.
func (s *Store) InviteMember(ctx context.Context, projectID, userID, invitedBy int64, role permissions.Role) (*Membership, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM project_memberships WHERE project_id = $1 AND user_id = $2 AND status IN ($3, $4))",
		projectID, userID, MembershipPending, MembershipAccepted).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing membership: %w", err)
	}
	if exists {
		return nil, ErrDuplicateMember
	}

	query := fmt.Sprintf(`
		INSERT INTO project_memberships (project_id, user_id, role, status, invited_by, invited_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING %s`, membershipColumns)

	m, err := scanMembership(s.pool.QueryRow(ctx, query,
		projectID, userID, role, MembershipPending, invitedBy))
	if err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}
	return m, nil
}

// GetMembership fetches a membership row by id.
func (s *Store) GetMembership(ctx context.Context, membershipID int64) (*Membership, error) {
	query := fmt.Sprintf("SELECT %s FROM project_memberships WHERE id = $1", membershipColumns)
	return scanMembership(s.pool.QueryRow(ctx, query, membershipID))
}

// RespondToInvitation moves a pending invitation to accepted or rejected.
// Only the invited user may respond, and only while the row is pending.
func (s *Store) RespondToInvitation(ctx context.Context, membershipID, userID int64, accept bool) (*Membership, error) {
	status := MembershipRejected
	acceptedAt := "NULL"
	if accept {
		status = MembershipAccepted
		acceptedAt = "NOW()"
	}

	query := fmt.Sprintf(`
		UPDATE project_memberships
		SET status = $3, accepted_at = %s
		WHERE id = $1 AND user_id = $2 AND status = $4
		RETURNING %s`, acceptedAt, membershipColumns)

	return scanMembership(s.pool.QueryRow(ctx, query,
		membershipID, userID, status, MembershipPending))
}

// ListMembers returns all membership rows for a project, pending included.
func (s *Store) ListMembers(ctx context.Context, projectID int64) ([]*Membership, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM project_memberships WHERE project_id = $1 ORDER BY invited_at",
		membershipColumns)

	rows, err := s.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListInvitationsForUser returns the user's pending invitations.
func (s *Store) ListInvitationsForUser(ctx context.Context, userID int64) ([]*Membership, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM project_memberships WHERE user_id = $1 AND status = $2 ORDER BY invited_at DESC",
		membershipColumns)

	rows, err := s.pool.Query(ctx, query, userID, MembershipPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []*Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, m)
	}
	return invitations, rows.Err()
}

// UpdateMemberRole changes an accepted member's role.
func (s *Store) UpdateMemberRole(ctx context.Context, projectID, userID int64, role permissions.Role) (*Membership, error) {
	query := fmt.Sprintf(`
		UPDATE project_memberships
		SET role = $3
		WHERE project_id = $1 AND user_id = $2 AND status = $4
		RETURNING %s`, membershipColumns)

	return scanMembership(s.pool.QueryRow(ctx, query,
		projectID, userID, role, MembershipAccepted))
}

// RemoveMember deletes the user's membership row for the project.
func (s *Store) RemoveMember(ctx context.Context, projectID, userID int64) error {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM project_memberships WHERE project_id = $1 AND user_id = $2",
		projectID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

// OwnerID implements permissions.RoleSource.
func (s *Store) OwnerID(ctx context.Context, projectID int64) (int64, error) {
	var ownerID int64
	err := s.pool.QueryRow(ctx, "SELECT owner_id FROM projects WHERE id = $1", projectID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrProjectNotFound
		}
		return 0, fmt.Errorf("failed to resolve project owner: %w", err)
	}
	return ownerID, nil
}

// MembershipRole implements permissions.RoleSource. Only accepted rows grant
// a role; pending, rejected and expired invitations resolve to no access.
func (s *Store) MembershipRole(ctx context.Context, userID, projectID int64) (permissions.Role, error) {
	var role permissions.Role
	err := s.pool.QueryRow(ctx,
		"SELECT role FROM project_memberships WHERE project_id = $1 AND user_id = $2 AND status = $3",
		projectID, userID, MembershipAccepted).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return permissions.RoleNone, nil
		}
		return permissions.RoleNone, fmt.Errorf("failed to resolve membership role: %w", err)
	}
	return role, nil
}
