// Package checkpoint persists per-package build progress so an interrupted
// build can resume from its last completed step.
//
// Each package gets its own directory under .fabrica/checkpoints, with one
// YAML file per completed step plus an append-only audit log of decisions.
package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fabrica-build/fabrica/internal/clock"
	"github.com/fabrica-build/fabrica/internal/constants"
	"github.com/fabrica-build/fabrica/internal/domain"
	fabricaerrors "github.com/fabrica-build/fabrica/internal/errors"
)

const (
	// fileExtension is the file extension for checkpoint files.
	fileExtension = ".yaml"
	// stepFilePattern names per-step snapshot files; the counter keeps
	// lexical and chronological order identical.
	stepFilePattern = "step-%04d" + fileExtension
	// filePerm is the permission for checkpoint files.
	filePerm = 0o644
	// dirPerm is the permission for checkpoint directories.
	dirPerm = 0o755
	// maxCheckpointFileSize is the maximum allowed size for one snapshot (1MB).
	maxCheckpointFileSize = 1024 * 1024
)

// Snapshot is one persisted engine state plus the decision that produced it.
type Snapshot struct {
	// Seq is the checkpoint sequence number, starting at 1.
	Seq int `json:"seq" yaml:"seq"`

	// PackageName is the package being built.
	PackageName string `json:"package_name" yaml:"package_name"`

	// Decision is the decision whose actions produced State.
	Decision domain.Decision `json:"decision" yaml:"decision"`

	// State is the engine state after folding Decision.
	State domain.EngineState `json:"state" yaml:"state"`

	// SavedAt is when the snapshot was written.
	SavedAt time.Time `json:"saved_at" yaml:"saved_at"`
}

// Store persists build snapshots as individual YAML files. It is safe for
// concurrent use by builds of different packages; snapshots of one package
// are serialized by the store's mutex.
type Store struct {
	mu sync.Mutex
	// dir is the absolute path to the checkpoints directory.
	dir string
	// clk supplies SavedAt timestamps.
	clk clock.Clock
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithClock overrides the store's time source.
func WithClock(clk clock.Clock) StoreOption {
	return func(s *Store) {
		s.clk = clk
	}
}

// NewStore creates a Store rooted at the given project directory. If
// projectRoot is empty, the current working directory is used.
func NewStore(projectRoot string, opts ...StoreOption) (*Store, error) {
	if projectRoot == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		projectRoot = cwd
	}
	absRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	s := &Store{
		dir: filepath.Join(absRoot, constants.FabricaHome, constants.CheckpointsDir),
		clk: clock.RealClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the absolute path to the checkpoints directory.
func (s *Store) Dir() string {
	return s.dir
}

// packageDir returns the directory for one package's checkpoints.
func (s *Store) packageDir(packageName string) string {
	return filepath.Join(s.dir, sanitizeName(packageName))
}

// Save writes a snapshot for the package. The sequence number is assigned
// from the last snapshot on disk; files are created with O_EXCL so two
// writers can never silently overwrite each other.
func (s *Store) Save(packageName string, decision domain.Decision, state domain.EngineState) (*Snapshot, error) {
	if packageName == "" {
		return nil, fmt.Errorf("package name cannot be empty: %w", fabricaerrors.ErrEmptyValue)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.packageDir(packageName)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	last, err := s.lastSeq(dir)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Seq:         last + 1,
		PackageName: packageName,
		Decision:    decision,
		State:       state,
		SavedAt:     s.clk.Now().UTC(),
	}

	data, err := yaml.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf(stepFilePattern, snap.Seq))
	if err := createSafe(path, data); err != nil {
		return nil, err
	}
	return snap, nil
}

// Latest returns the most recent snapshot for the package. Returns
// ErrCheckpointNotFound when no snapshot exists.
func (s *Store) Latest(packageName string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.packageDir(packageName)
	files, err := stepFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", fabricaerrors.ErrCheckpointNotFound, packageName)
	}
	return loadFile(filepath.Join(dir, files[len(files)-1]))
}

// List returns every snapshot for the package in sequence order.
func (s *Store) List(packageName string) ([]*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.packageDir(packageName)
	files, err := stepFiles(dir)
	if err != nil {
		return nil, err
	}

	snaps := make([]*Snapshot, 0, len(files))
	for _, name := range files {
		snap, err := loadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// Clear removes every snapshot for the package, typically after a successful
// publish.
func (s *Store) Clear(packageName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.RemoveAll(s.packageDir(packageName))
}

// stepFiles lists step snapshot files in lexical (= sequence) order. A
// missing directory yields an empty list.
func stepFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "step-") || !strings.HasSuffix(name, fileExtension) {
			continue
		}
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}

// loadFile reads and unmarshals one snapshot file.
func loadFile(path string) (*Snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", fabricaerrors.ErrCheckpointNotFound, path)
	}
	if info.Size() > maxCheckpointFileSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes",
			fabricaerrors.ErrCheckpointCorrupt, path, maxCheckpointFileSize)
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is constructed internally
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %s: %s", fabricaerrors.ErrCheckpointCorrupt, path, err.Error())
	}
	return &snap, nil
}

// lastSeq returns the highest sequence number on disk, 0 when none exist.
func (s *Store) lastSeq(dir string) (int, error) {
	files, err := stepFiles(dir)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, nil
	}

	var seq int
	if _, err := fmt.Sscanf(files[len(files)-1], stepFilePattern, &seq); err != nil {
		return 0, fmt.Errorf("%w: unparseable checkpoint file %s",
			fabricaerrors.ErrCheckpointCorrupt, files[len(files)-1])
	}
	return seq, nil
}

// createSafe creates a new file with O_EXCL to prevent overwriting existing
// files.
func createSafe(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm) //nolint:gosec // path is constructed internally
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	return nil
}

// sanitizeName converts a package name (possibly scoped, like
// "@fabrica/core-types") into a filesystem-safe directory name.
func sanitizeName(name string) string {
	r := strings.NewReplacer("@", "", "/", "__")
	return r.Replace(name)
}
