package provisioning

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// maxIdentifierLen is the PostgreSQL identifier limit, which also satisfies
// the S3 bucket name limit.
const maxIdentifierLen = 63

var (
	slugInvalidChars = regexp.MustCompile(`[^a-z0-9-]+`)
	slugDashRuns     = regexp.MustCompile(`-{2,}`)
)

// Names are the generated resource identifiers for one project.
type Names struct {
	Slug       string
	DBName     string
	BucketName string
}

// Slugify lowercases the name, replaces runs of invalid characters with a
// single dash and trims leading and trailing dashes.
func Slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = slugInvalidChars.ReplaceAllString(slug, "-")
	slug = slugDashRuns.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// GenerateNames derives the unique database and bucket names for a project.
// An 8-character random suffix keeps projects with identical names apart.
func GenerateNames(projectName string) Names {
	slug := Slugify(projectName)
	if slug == "" {
		slug = "project"
	}

	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	slug = slug + "-" + suffix

	dbName := "project_" + strings.ReplaceAll(slug, "-", "_") + "_db"
	bucketName := "project-" + slug + "-bucket"

	return Names{
		Slug:       slug,
		DBName:     truncate(strings.ToLower(dbName)),
		BucketName: truncate(strings.ToLower(bucketName)),
	}
}

// truncate cuts the name to the identifier limit and drops any separator the
// cut left dangling. Bucket names must not end in a hyphen.
func truncate(s string) string {
	if len(s) > maxIdentifierLen {
		s = s[:maxIdentifierLen]
	}
	return strings.TrimRight(s, "-_")
}
