package checkpoint

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fabrica-build/fabrica/internal/clock"
	"github.com/fabrica-build/fabrica/internal/constants"
	fabricaerrors "github.com/fabrica-build/fabrica/internal/errors"
)

// AuditRecord is one append-only audit entry for a package build.
type AuditRecord struct {
	// At is when the record was written.
	At time.Time `yaml:"at"`

	// PackageName is the package the record belongs to.
	PackageName string `yaml:"package_name"`

	// DecisionID links the record to the decision it describes, if any.
	DecisionID string `yaml:"decision_id,omitempty"`

	// Event names what happened (e.g. "decision_applied", "build_failed").
	Event string `yaml:"event"`

	// Detail is free-form context for the event.
	Detail string `yaml:"detail,omitempty"`
}

// AuditLog appends records to a per-package YAML document stream. Records
// are never rewritten; the file is the forensic trail of a build.
type AuditLog struct {
	mu  sync.Mutex
	dir string
	clk clock.Clock
}

// NewAuditLog creates an AuditLog sharing the checkpoint store's directory
// layout and time source.
func NewAuditLog(store *Store) *AuditLog {
	return &AuditLog{dir: store.Dir(), clk: store.clk}
}

// Append writes one record to the package's audit file, creating it on first
// use.
func (l *AuditLog) Append(record AuditRecord) error {
	if record.PackageName == "" {
		return fmt.Errorf("audit record needs a package name: %w", fabricaerrors.ErrEmptyValue)
	}
	if record.At.IsZero() {
		record.At = l.clk.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	dir := filepath.Join(l.dir, sanitizeName(record.PackageName))
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}

	data, err := yaml.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	path := filepath.Join(dir, constants.AuditLogFileName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, filePerm) //nolint:gosec // path is constructed internally
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteString("---\n"); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// Read returns every audit record for the package in append order.
func (l *AuditLog) Read(packageName string) ([]AuditRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	path := filepath.Join(l.dir, sanitizeName(packageName), constants.AuditLogFileName)
	f, err := os.Open(path) //nolint:gosec // path is constructed internally
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer func() { _ = f.Close() }()

	var records []AuditRecord
	dec := yaml.NewDecoder(f)
	for {
		var record AuditRecord
		if err := dec.Decode(&record); err != nil {
			if stderrors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: %s: %s", fabricaerrors.ErrCheckpointCorrupt, path, err.Error())
		}
		records = append(records, record)
	}
	return records, nil
}
