package render

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/segstream/domain/entities"
	"github.com/satriahrh/segstream/domain/repositories"
)

// FileSink writes each returned overlay (and optionally the mask) to disk.
// By default the file is replaced so it always shows the latest frame.
type FileSink struct {
	output     string
	maskOutput string
	keepAll    bool
	logger     *zap.Logger

	mu       sync.Mutex
	rendered int64
}

var _ repositories.ResultSink = (*FileSink)(nil)

// NewFileSink creates a sink writing to output; maskOutput may be empty
func NewFileSink(output, maskOutput string, keepAll bool, logger *zap.Logger) (*FileSink, error) {
	if output == "" {
		return nil, fmt.Errorf("render output path is required")
	}
	for _, p := range []string{output, maskOutput} {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("create render directory: %w", err)
		}
	}
	return &FileSink{
		output:     output,
		maskOutput: maskOutput,
		keepAll:    keepAll,
		logger:     logger,
	}, nil
}

// Render implements repositories.ResultSink. Failed results render nothing.
func (s *FileSink) Render(result entities.FrameResult) error {
	if !result.Success {
		s.logger.Debug("Skipping failed result", zap.Int64("frameNumber", result.SequenceNumber))
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(s.output, result.SequenceNumber, result.Overlay); err != nil {
		return fmt.Errorf("render overlay: %w", err)
	}
	if s.maskOutput != "" && result.Mask != "" {
		if err := s.write(s.maskOutput, result.SequenceNumber, result.Mask); err != nil {
			return fmt.Errorf("render mask: %w", err)
		}
	}
	s.rendered++
	return nil
}

// Rendered returns how many results were written
func (s *FileSink) Rendered() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rendered
}

func (s *FileSink) write(path string, frameNumber int64, encoded string) error {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("decode base64: %w", err)
	}

	if s.keepAll {
		path = numbered(path, frameNumber)
	}

	// Replace atomically so a viewer never reads a half-written image.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".render-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	s.logger.Debug("Rendered image",
		zap.String("path", path),
		zap.Int64("frameNumber", frameNumber),
		zap.Int("bytes", len(data)))
	return nil
}

// numbered turns out/overlay.png into out/overlay_000042.png
func numbered(path string, frameNumber int64) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s_%06d%s", base, frameNumber, ext)
}
