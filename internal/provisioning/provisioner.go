package provisioning

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"

	"github.com/nexiath/sovera/internal/tenantdb"
	"github.com/nexiath/sovera/pkg/logger"
)

// Error is a provisioning failure tied to one resource kind.
type Error struct {
	Resource string // "database" or "bucket"
	Name     string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provisioning %s %s: %v", e.Resource, e.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Provisioner creates and tears down the per-project database and bucket.
// The admin pool must connect as a role allowed to create databases.
type Provisioner struct {
	admin   *pgxpool.Pool
	storage *minio.Client
	tenants *tenantdb.Registry
	logger  *logger.Logger
}

// New creates a provisioner.
func New(admin *pgxpool.Pool, storage *minio.Client, tenants *tenantdb.Registry, log *logger.Logger) *Provisioner {
	return &Provisioner{
		admin:   admin,
		storage: storage,
		tenants: tenants,
		logger:  log,
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Provision creates the project's database with its baseline schema and the
// project's bucket. Both steps are idempotent: resources that already exist
// are logged and reused rather than treated as failures.
func (p *Provisioner) Provision(ctx context.Context, names Names) error {
	if err := p.provisionDatabase(ctx, names.DBName); err != nil {
		return &Error{Resource: "database", Name: names.DBName, Err: err}
	}
	if err := p.provisionBucket(ctx, names.BucketName); err != nil {
		return &Error{Resource: "bucket", Name: names.BucketName, Err: err}
	}
	p.logger.Infof("Provisioned tenant resources: db=%s bucket=%s", names.DBName, names.BucketName)
	return nil
}

func (p *Provisioner) provisionDatabase(ctx context.Context, dbName string) error {
	var exists bool
	err := p.admin.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check database existence: %w", err)
	}

	if exists {
		p.logger.Warnf("Database %s already exists, reusing it", dbName)
	} else {
		// CREATE DATABASE cannot take bind parameters; the name is generated
		// and quoted, never user input.
		if _, err := p.admin.Exec(ctx, "CREATE DATABASE "+quoteIdent(dbName)); err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
		p.logger.Infof("Created database %s", dbName)
	}

	return p.ensureBaselineSchema(ctx, dbName)
}

// baselineDDL is the schema every fresh tenant database starts with.
var baselineDDL = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id SERIAL PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		description TEXT,
		data JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS project_metadata (
		key VARCHAR(255) PRIMARY KEY,
		value TEXT,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS files (
		id SERIAL PRIMARY KEY,
		filename VARCHAR(255) NOT NULL,
		object_key VARCHAR(512) NOT NULL UNIQUE,
		content_type VARCHAR(255),
		size_bytes BIGINT NOT NULL DEFAULT 0,
		uploaded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_items_created_at ON items(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_files_uploaded_at ON files(uploaded_at)`,
	`INSERT INTO project_metadata (key, value) VALUES ('schema_version', '1')
		ON CONFLICT (key) DO NOTHING`,
}

func (p *Provisioner) ensureBaselineSchema(ctx context.Context, dbName string) error {
	pool, err := p.tenants.Get(ctx, dbName)
	if err != nil {
		return err
	}
	for _, ddl := range baselineDDL {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("failed to apply baseline schema: %w", err)
		}
	}
	return nil
}

func (p *Provisioner) provisionBucket(ctx context.Context, bucketName string) error {
	exists, err := p.storage.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		p.logger.Warnf("Bucket %s already exists, reusing it", bucketName)
		return nil
	}

	if err := p.storage.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	p.logger.Infof("Created bucket %s", bucketName)
	return nil
}

// Cleanup tears down the project's resources. It reports whether both the
// database and the bucket ended up gone; individual failures are logged and
// do not stop the other resource from being removed.
func (p *Provisioner) Cleanup(ctx context.Context, names Names) bool {
	ok := true

	if err := p.dropDatabase(ctx, names.DBName); err != nil {
		p.logger.Errorf("Failed to drop database %s: %v", names.DBName, err)
		ok = false
	}
	if err := p.removeBucket(ctx, names.BucketName); err != nil {
		p.logger.Errorf("Failed to remove bucket %s: %v", names.BucketName, err)
		ok = false
	}

	if ok {
		p.logger.Infof("Cleaned up tenant resources: db=%s bucket=%s", names.DBName, names.BucketName)
	}
	return ok
}

func (p *Provisioner) dropDatabase(ctx context.Context, dbName string) error {
	// Close our own cached pool first, then kick out any remaining sessions
	// so the drop does not block.
	p.tenants.Invalidate(dbName)

	_, err := p.admin.Exec(ctx, `
		SELECT pg_terminate_backend(pid)
		FROM pg_stat_activity
		WHERE datname = $1 AND pid <> pg_backend_pid()`, dbName)
	if err != nil {
		return fmt.Errorf("failed to terminate tenant sessions: %w", err)
	}

	if _, err := p.admin.Exec(ctx, "DROP DATABASE IF EXISTS "+quoteIdent(dbName)); err != nil {
		return fmt.Errorf("failed to drop database: %w", err)
	}
	return nil
}

func (p *Provisioner) removeBucket(ctx context.Context, bucketName string) error {
	exists, err := p.storage.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return nil
	}

	// Buckets must be empty before removal.
	objects := p.storage.ListObjects(ctx, bucketName, minio.ListObjectsOptions{Recursive: true})
	for obj := range objects {
		if obj.Err != nil {
			return fmt.Errorf("failed to list bucket objects: %w", obj.Err)
		}
		if err := p.storage.RemoveObject(ctx, bucketName, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to remove object %s: %w", obj.Key, err)
		}
	}

	if err := p.storage.RemoveBucket(ctx, bucketName); err != nil {
		return fmt.Errorf("failed to remove bucket: %w", err)
	}
	return nil
}
