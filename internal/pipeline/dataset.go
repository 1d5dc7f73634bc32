package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/fmueller/voxbatch/internal/audio"
	"go.uber.org/zap"
)

var ErrDatasetNotFound = errors.New("dataset folder not found")

type FileFailure struct {
	Path string
	Err  error
}

// Report summarizes one dataset run.
type Report struct {
	Discovered int
	Succeeded  []string
	Failed     []FileFailure
}

// DiscoverFiles lists supported audio files under root in lexical order.
func DiscoverFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, root)
		}
		return nil, fmt.Errorf("stat dataset folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrDatasetNotFound, root)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && audio.IsSupported(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk dataset folder: %w", err)
	}

	sort.Strings(files)
	return files, nil
}

// ProcessDataset processes every supported file under root one at a time.
// A failed file is logged and recorded in the report; the walk continues.
func (o *Orchestrator) ProcessDataset(ctx context.Context, root string) (Report, error) {
	files, err := DiscoverFiles(root)
	if err != nil {
		return Report{}, err
	}

	report := Report{Discovered: len(files)}
	if len(files) == 0 {
		o.logger.Warn("no audio files found", zap.String("dataset", root))
		return report, nil
	}
	o.logger.Info("processing dataset", zap.String("dataset", root), zap.Int("files", len(files)))

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		o.logger.Info("processing file",
			zap.String("file", path),
			zap.Int("position", i+1),
			zap.Int("of", len(files)),
		)
		if _, err := o.ProcessFile(ctx, path); err != nil {
			if !IsFileFailure(err) {
				return report, err
			}
			o.logger.Error("file failed", zap.String("file", path), zap.Error(err))
			report.Failed = append(report.Failed, FileFailure{Path: path, Err: err})
			continue
		}
		report.Succeeded = append(report.Succeeded, path)
	}

	o.logger.Info("dataset finished",
		zap.Int("succeeded", len(report.Succeeded)),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}
