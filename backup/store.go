// Package backup implements the on-disk backup store shared by the three
// rollback engines. Snapshots live under <root>/<environment>/<domain>/ in
// timestamp-named directories, each carrying a manifest that enumerates the
// captured items so restore never has to guess from a raw directory listing.
package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tradewatch/deployctl/config"
	"github.com/tradewatch/deployctl/operr"
)

// Domain names one of the three independently-backed-up subsystems.
type Domain string

const (
	DomainConfig   Domain = "config"
	DomainDatabase Domain = "database"
	DomainCode     Domain = "code"
)

// ParseDomain resolves a domain name.
func ParseDomain(name string) (Domain, error) {
	switch Domain(name) {
	case DomainConfig, DomainDatabase, DomainCode:
		return Domain(name), nil
	}
	return "", operr.E(operr.InvalidArgument, "resolve domain",
		fmt.Sprintf("unknown domain %q (must be config, database or code)", name))
}

// Record identifies one point-in-time snapshot of a single domain for a
// single environment. Records are immutable once written.
type Record struct {
	ID          string             `yaml:"id"`
	Domain      Domain             `yaml:"domain"`
	Environment config.Environment `yaml:"environment"`
	CreatedAt   time.Time          `yaml:"created_at"`
	Contents    []string           `yaml:"contents"`
	Note        string             `yaml:"note,omitempty"`
}

const manifestName = "manifest.yaml"

// Store is the backup root. All snapshot directories are created and
// resolved through it.
type Store struct {
	root string
	now  func() time.Time
}

func NewStore(root string) *Store {
	return &Store{root: root, now: time.Now}
}

// Dir returns the directory that holds the snapshot identified by record id.
func (s *Store) Dir(env config.Environment, domain Domain, id string) string {
	return filepath.Join(s.root, string(env), string(domain), id)
}

// Create allocates a fresh timestamped snapshot directory, invokes populate
// to fill it, and writes the manifest. populate returns the logical item
// names it captured; an empty item list is allowed (a code snapshot records
// a branch reference rather than files).
func (s *Store) Create(env config.Environment, domain Domain, note string, populate func(dir string) ([]string, error)) (*Record, error) {
	id, dir, err := s.allocate(env, domain)
	if err != nil {
		return nil, err
	}

	contents, err := populate(dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to populate backup %s: %w", id, err)
	}

	record := &Record{
		ID:          id,
		Domain:      domain,
		Environment: env,
		CreatedAt:   s.now().UTC(),
		Contents:    contents,
		Note:        note,
	}
	if err := writeManifest(dir, record); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return record, nil
}

func (s *Store) allocate(env config.Environment, domain Domain) (string, string, error) {
	base := "backup-" + s.now().UTC().Format("20060102-150405")
	id := base
	// Two snapshots in the same second get a numeric suffix so ids stay
	// monotonically distinguishable.
	for n := 2; ; n++ {
		dir := s.Dir(env, domain, id)
		err := os.MkdirAll(filepath.Dir(dir), 0o755)
		if err != nil {
			return "", "", fmt.Errorf("failed to create backup root: %w", err)
		}
		if err := os.Mkdir(dir, 0o755); err == nil {
			return id, dir, nil
		} else if !os.IsExist(err) {
			return "", "", fmt.Errorf("failed to create backup directory: %w", err)
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
}

// Open resolves a snapshot by id within one environment and domain.
func (s *Store) Open(env config.Environment, domain Domain, id string) (*Record, string, error) {
	dir := s.Dir(env, domain, id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, "", operr.E(operr.NotFound, "open backup",
			fmt.Sprintf("backup %s not found for %s/%s", id, env, domain))
	}
	record, err := readManifest(dir)
	if err != nil {
		return nil, "", err
	}
	return record, dir, nil
}

// Locate searches every environment for a snapshot id within one domain.
// Restore commands take a bare backup id; the manifest's recorded
// environment decides where the restore goes, never the caller's guess.
func (s *Store) Locate(domain Domain, id string) (*Record, string, error) {
	for _, env := range config.Environments() {
		dir := s.Dir(env, domain, id)
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		record, err := readManifest(dir)
		if err != nil {
			return nil, "", err
		}
		return record, dir, nil
	}
	return nil, "", operr.E(operr.NotFound, "locate backup",
		fmt.Sprintf("backup %s not found in any environment for domain %s", id, domain))
}

// List returns all snapshot records for one environment and domain,
// newest first.
func (s *Store) List(env config.Environment, domain Domain) ([]Record, error) {
	dir := filepath.Join(s.root, string(env), string(domain))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	var records []Record
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		record, err := readManifest(filepath.Join(dir, entry.Name()))
		if err != nil {
			// A directory without a readable manifest is skipped, not
			// fatal: it may be a snapshot still being written.
			continue
		}
		records = append(records, *record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID > records[j].ID })
	return records, nil
}

func writeManifest(dir string, record *Record) error {
	data, err := yaml.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal backup manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestName), data, 0o644); err != nil {
		return fmt.Errorf("failed to write backup manifest: %w", err)
	}
	return nil
}

func readManifest(dir string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return nil, operr.Wrap(operr.NotFound, "read backup manifest",
			fmt.Sprintf("backup at %s has no readable manifest", dir), err)
	}
	var record Record
	if err := yaml.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to parse backup manifest: %w", err)
	}
	return &record, nil
}
