package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fmueller/voxbatch/internal/result"
	"go.uber.org/zap"
)

const (
	DefaultRoot         = "processed_data"
	DefaultAudioFolder  = "audio"
	DefaultSourceFolder = "urdu"
	DefaultTargetFolder = "english"

	LedgerFileName   = "metadata.json"
	detailedSuffix   = "_detailed.json"
	archiveExtension = ".mp3"
)

var ErrLedgerCorrupt = errors.New("ledger file is corrupt")

// Layout names the folders under the output root.
type Layout struct {
	Root         string
	AudioFolder  string
	SourceFolder string
	TargetFolder string
}

func (l Layout) withDefaults() Layout {
	if l.Root == "" {
		l.Root = DefaultRoot
	}
	if l.AudioFolder == "" {
		l.AudioFolder = DefaultAudioFolder
	}
	if l.SourceFolder == "" {
		l.SourceFolder = DefaultSourceFolder
	}
	if l.TargetFolder == "" {
		l.TargetFolder = DefaultTargetFolder
	}
	return l
}

func (l Layout) AudioDir() string  { return filepath.Join(l.Root, l.AudioFolder) }
func (l Layout) SourceDir() string { return filepath.Join(l.Root, l.SourceFolder) }
func (l Layout) TargetDir() string { return filepath.Join(l.Root, l.TargetFolder) }
func (l Layout) LedgerPath() string {
	return filepath.Join(l.Root, LedgerFileName)
}

// Store persists per-file results and the cumulative ledger.
type Store struct {
	layout Layout
	logger *zap.Logger
	now    func() time.Time

	ledgerMu sync.Mutex
}

type Options struct {
	Layout Layout
	Logger *zap.Logger
	Now    func() time.Time
}

// New creates the output folders and returns a Store rooted at them.
func New(opts Options) (*Store, error) {
	layout := opts.Layout.withDefaults()
	for _, dir := range []string{layout.Root, layout.AudioDir(), layout.SourceDir(), layout.TargetDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output folder %s: %w", dir, err)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Store{layout: layout, logger: logger, now: now}, nil
}

func (s *Store) Layout() Layout { return s.layout }

// Stem is the file name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SaveArchive writes the re-encoded copy of a source file and returns its path.
func (s *Store) SaveArchive(sourcePath string, data []byte) (string, error) {
	path := filepath.Join(s.layout.AudioDir(), Stem(sourcePath)+archiveExtension)
	if err := writeFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("save archive copy: %w", err)
	}
	return path, nil
}

// SaveFile writes the combined texts and the detailed record for one file.
// Earlier outputs for the same stem are replaced.
func (s *Store) SaveFile(record result.FileRecord) error {
	stem := Stem(record.Metadata.OriginalFile)

	if err := writeFileAtomic(filepath.Join(s.layout.SourceDir(), stem+".txt"), []byte(record.SourceText)); err != nil {
		return fmt.Errorf("save source text: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.layout.TargetDir(), stem+".txt"), []byte(record.TargetText)); err != nil {
		return fmt.Errorf("save target text: %w", err)
	}

	data, err := marshalDocument(record)
	if err != nil {
		return fmt.Errorf("encode detailed record: %w", err)
	}
	if err := writeFileAtomic(s.DetailedPath(record.Metadata.OriginalFile), data); err != nil {
		return fmt.Errorf("save detailed record: %w", err)
	}

	s.logger.Debug("saved file outputs", zap.String("stem", stem))
	return nil
}

func (s *Store) DetailedPath(sourcePath string) string {
	return filepath.Join(s.layout.Root, Stem(sourcePath)+detailedSuffix)
}

// LoadLedger reads the ledger. A missing or empty file yields the zero
// state. Malformed content returns ErrLedgerCorrupt.
func (s *Store) LoadLedger() (result.Ledger, error) {
	data, err := os.ReadFile(s.layout.LedgerPath())
	if errors.Is(err, os.ErrNotExist) {
		return result.NewLedger(), nil
	}
	if err != nil {
		return result.Ledger{}, fmt.Errorf("read ledger: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return result.NewLedger(), nil
	}

	ledger := result.NewLedger()
	if err := json.Unmarshal(data, &ledger); err != nil {
		return result.Ledger{}, fmt.Errorf("%w: %w", ErrLedgerCorrupt, err)
	}
	if ledger.ProcessingHistory == nil {
		ledger.ProcessingHistory = []result.HistoryEntry{}
	}
	return ledger, nil
}

// AppendToLedger accounts for record in the ledger and rewrites it whole.
// A corrupt ledger is replaced by a fresh one.
func (s *Store) AppendToLedger(record result.FileRecord) (result.Ledger, error) {
	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()

	ledger, err := s.LoadLedger()
	if errors.Is(err, ErrLedgerCorrupt) {
		s.logger.Warn("invalid ledger file; starting a new one",
			zap.String("path", s.layout.LedgerPath()),
			zap.Error(err),
		)
		ledger = result.NewLedger()
	} else if err != nil {
		return result.Ledger{}, err
	}

	next := result.UpdateLedger(ledger, record, s.now())
	data, err := marshalDocument(next)
	if err != nil {
		return result.Ledger{}, fmt.Errorf("encode ledger: %w", err)
	}
	if err := writeFileAtomic(s.layout.LedgerPath(), data); err != nil {
		return result.Ledger{}, fmt.Errorf("save ledger: %w", err)
	}

	s.logger.Info("ledger updated",
		zap.Int("total_files", next.TotalFiles),
		zap.Float64("total_duration", next.TotalDuration),
	)
	return next, nil
}

// marshalDocument indents with two spaces and keeps non-ASCII text readable.
func marshalDocument(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tempPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("flush temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("set file mode: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		cleanup()
		return fmt.Errorf("move %s into place: %w", filepath.Base(path), err)
	}
	return nil
}
