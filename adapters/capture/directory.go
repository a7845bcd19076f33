package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/segstream/domain/entities"
	"github.com/satriahrh/segstream/domain/repositories"
)

var imageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// DirectorySource replays the images of a directory in name order, looping
type DirectorySource struct {
	dir    string
	loop   bool
	logger *zap.Logger

	mu     sync.Mutex
	files  []string
	next   int
	closed bool
}

var _ repositories.CaptureSource = (*DirectorySource)(nil)

// NewDirectorySource lists the image files of dir
func NewDirectorySource(dir string, loop bool, logger *zap.Logger) (*DirectorySource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read capture directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; ok {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .jpg, .jpeg or .png files in %s", dir)
	}
	sort.Strings(files)

	logger.Info("Directory capture source ready",
		zap.String("dir", dir),
		zap.Int("files", len(files)),
		zap.Bool("loop", loop))

	return &DirectorySource{
		dir:    dir,
		loop:   loop,
		logger: logger,
		files:  files,
	}, nil
}

// Snapshot returns the next file's bytes as-is
func (s *DirectorySource) Snapshot(ctx context.Context) (entities.Frame, error) {
	if err := ctx.Err(); err != nil {
		return entities.Frame{}, fmt.Errorf("%w: %v", entities.ErrCaptureUnavailable, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return entities.Frame{}, fmt.Errorf("%w: source closed", entities.ErrCaptureUnavailable)
	}
	if s.next >= len(s.files) {
		if !s.loop {
			s.mu.Unlock()
			return entities.Frame{}, fmt.Errorf("%w: no more files in %s", entities.ErrCaptureUnavailable, s.dir)
		}
		s.next = 0
	}
	path := s.files[s.next]
	s.next++
	s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return entities.Frame{}, fmt.Errorf("%w: %v", entities.ErrCaptureUnavailable, err)
	}

	frame := entities.Frame{
		Data:        data,
		ContentType: imageExtensions[strings.ToLower(filepath.Ext(path))],
		CapturedAt:  time.Now(),
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		frame.Width = cfg.Width
		frame.Height = cfg.Height
	} else {
		s.logger.Warn("Capture file is not a decodable image",
			zap.String("path", path),
			zap.Error(err))
	}
	return frame, nil
}

// Close stops the source; later snapshots fail
func (s *DirectorySource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
