package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	cardlink "github.com/osmi-labs/cardlink"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const (
	defaultSourceLabel = "cardlink"
	migrationsBasePath = "data/sql/migrations"
	sqliteSubdir       = "sqlite"
)

// FilesystemSpec pairs a dialect with the filesystem holding its
// migration files.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// Registration is the resolved outcome of Register: which dialects were
// validated and which filesystems back them.
type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Filesystems       []FilesystemSpec
}

// RegisterFunc receives one dialect's migration filesystem, typically
// forwarding it to the persistence client's SQL migration registration.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithDialectSourceLabel(label string) Option {
	return func(r *Registration) {
		if label = strings.TrimSpace(label); label != "" {
			r.SourceLabel = label
		}
	}
}

func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		if normalized := normalizeDialects(targets); len(normalized) > 0 {
			r.ValidationTargets = normalized
		}
	}
}

func WithFilesystems(filesystems ...FilesystemSpec) Option {
	return func(r *Registration) {
		kept := filesystems[:0:0]
		for _, spec := range filesystems {
			spec.Dialect = strings.TrimSpace(strings.ToLower(spec.Dialect))
			if spec.Dialect == "" || spec.FS == nil {
				continue
			}
			kept = append(kept, spec)
		}
		if len(kept) > 0 {
			r.Filesystems = kept
		}
	}
}

// Filesystems resolves the postgres and sqlite migration trees from the
// embedded migration filesystem, or from an explicit override. The
// postgres files live at the tree root, the sqlite variants under
// sqlite/.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	root := cardlink.GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}

	base, basePath := root, "."
	if sub, err := fs.Sub(root, migrationsBasePath); err == nil {
		base, basePath = sub, migrationsBasePath
	} else if !hasSQLFiles(root) {
		return nil, fmt.Errorf("migrations: %s not found in migration filesystem: %w", migrationsBasePath, err)
	}

	sqliteFS, err := fs.Sub(base, sqliteSubdir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	specs := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: basePath, FS: base},
		{Dialect: DialectSQLite, Path: joinFSPath(basePath, sqliteSubdir), FS: sqliteFS},
	}
	for _, spec := range specs {
		if err := requireUpMigrations(spec); err != nil {
			return nil, err
		}
	}
	return specs, nil
}

// Register resolves the migration filesystems, applies the options, and
// feeds each validated dialect's tree into registerFn.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel:       defaultSourceLabel,
		ValidationTargets: []string{DialectPostgres, DialectSQLite},
	}

	filesystems, err := Filesystems()
	if err != nil {
		return reg, err
	}
	reg.Filesystems = filesystems

	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}

	switch {
	case registerFn == nil:
		return reg, fmt.Errorf("migrations: register function is required")
	case strings.TrimSpace(reg.SourceLabel) == "":
		return reg, fmt.Errorf("migrations: source label is required")
	case len(reg.ValidationTargets) == 0:
		return reg, fmt.Errorf("migrations: validation targets are required")
	case len(reg.Filesystems) == 0:
		return reg, fmt.Errorf("migrations: filesystems are required")
	}

	wanted := make(map[string]struct{}, len(reg.ValidationTargets))
	for _, target := range normalizeDialects(reg.ValidationTargets) {
		wanted[target] = struct{}{}
	}

	for _, spec := range reg.Filesystems {
		if _, ok := wanted[spec.Dialect]; !ok {
			continue
		}
		if spec.FS == nil {
			return reg, fmt.Errorf("migrations: filesystem for %s is nil", spec.Dialect)
		}
		if err := registerFn(ctx, spec.Dialect, reg.SourceLabel, spec.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", spec.Dialect, spec.Path, err)
		}
	}
	return reg, nil
}

func requireUpMigrations(spec FilesystemSpec) error {
	matches, err := fs.Glob(spec.FS, "*.up.sql")
	if err != nil {
		return fmt.Errorf("migrations: glob %s %s: %w", spec.Dialect, spec.Path, err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", spec.Dialect, spec.Path)
	}
	return nil
}

func hasSQLFiles(fsys fs.FS) bool {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			return true
		}
	}
	return false
}

func normalizeDialects(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(strings.ToLower(value))
		if value == "" {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func joinFSPath(base string, child string) string {
	if base == "." {
		return child
	}
	return strings.TrimSuffix(base, "/") + "/" + child
}
