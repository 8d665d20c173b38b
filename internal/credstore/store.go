// Package credstore persists per-tenant credential bundles to a filesystem
// directory, per spec §4.1 (Credential Store, C1).
package credstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shsh-labs/chatgw/internal/domain"
)

// ErrInvalidTenantID is returned when a tenant ID is not filesystem-safe.
var ErrInvalidTenantID = errors.New("tenant id must not contain path separators")

const bundleFileName = "creds.bin"

// Store persists credential bundles under <baseDir>/<tenantId>/creds.bin,
// using a write-temp-then-rename pattern for crash safety.
type Store struct {
	baseDir string
}

// New creates a credential store rooted at baseDir, creating it if
// necessary. Failure to create or write the base directory is fatal at
// process start per spec §4.1, since it blocks every tenant.
func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create session base dir %s: %w", baseDir, err)
	}

	// Sentinel write/remove to catch a read-only filesystem early.
	probe := filepath.Join(baseDir, ".probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return nil, fmt.Errorf("session base dir %s is not writable: %w", baseDir, err)
	}
	_ = os.Remove(probe)

	return &Store{baseDir: baseDir}, nil
}

func validateTenantID(tenantID string) error {
	if tenantID == "" || strings.ContainsAny(tenantID, "/\\") || tenantID == "." || tenantID == ".." {
		return ErrInvalidTenantID
	}
	return nil
}

func (s *Store) tenantDir(tenantID string) string {
	return filepath.Join(s.baseDir, tenantID)
}

// Load returns the stored credential bundle for a tenant, or an empty
// bundle if none exists yet.
func (s *Store) Load(_ context.Context, tenantID string) (domain.CredentialBundle, error) {
	if err := validateTenantID(tenantID); err != nil {
		return domain.CredentialBundle{}, err
	}

	path := filepath.Join(s.tenantDir(tenantID), bundleFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.CredentialBundle{TenantID: tenantID}, nil
		}
		return domain.CredentialBundle{}, fmt.Errorf("load credentials for %s: %w", tenantID, err)
	}

	return domain.CredentialBundle{TenantID: tenantID, Data: data}, nil
}

// Save persists a credential bundle atomically: write-temp, then rename.
func (s *Store) Save(_ context.Context, tenantID string, bundle domain.CredentialBundle) error {
	if err := validateTenantID(tenantID); err != nil {
		return err
	}

	dir := s.tenantDir(tenantID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create tenant dir for %s: %w", tenantID, err)
	}

	path := filepath.Join(dir, bundleFileName)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, bundle.Data, 0o600); err != nil {
		return fmt.Errorf("write temp credentials for %s: %w", tenantID, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename credentials for %s: %w", tenantID, err)
	}

	return nil
}

// Purge removes the tenant's entire credential directory recursively and
// idempotently, per spec §4.1 and the logged-out / explicit-logout
// invariant in §3.
func (s *Store) Purge(_ context.Context, tenantID string) error {
	if err := validateTenantID(tenantID); err != nil {
		return err
	}

	if err := os.RemoveAll(s.tenantDir(tenantID)); err != nil {
		return fmt.Errorf("purge credentials for %s: %w", tenantID, err)
	}
	return nil
}
