package render

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/satriahrh/segstream/domain/entities"
)

func result(n int64, overlay, mask string) entities.FrameResult {
	return entities.FrameResult{
		Success:        true,
		SequenceNumber: n,
		Overlay:        base64.StdEncoding.EncodeToString([]byte(overlay)),
		Mask:           base64.StdEncoding.EncodeToString([]byte(mask)),
	}
}

func TestFileSink_ReplacesLatest(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out", "overlay.png")
	maskOutput := filepath.Join(dir, "out", "mask.png")

	sink, err := NewFileSink(output, maskOutput, false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}

	for i, body := range []string{"first", "second"} {
		if err := sink.Render(result(int64(i+1), body, body+"-mask")); err != nil {
			t.Fatalf("Render failed: %v", err)
		}
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("Expected overlay file: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("Expected the latest overlay, got %q", data)
	}
	mask, err := os.ReadFile(maskOutput)
	if err != nil {
		t.Fatalf("Expected mask file: %v", err)
	}
	if string(mask) != "second-mask" {
		t.Errorf("Expected the latest mask, got %q", mask)
	}
	if sink.Rendered() != 2 {
		t.Errorf("Expected 2 rendered results, got %d", sink.Rendered())
	}
}

func TestFileSink_KeepAll(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(filepath.Join(dir, "overlay.png"), "", true, zap.NewNop())
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}

	if err := sink.Render(result(7, "seven", "")); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "overlay_000007.png")); err != nil {
		t.Errorf("Expected a numbered overlay: %v", err)
	}
}

func TestFileSink_SkipsAndRejects(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "overlay.png")
	sink, err := NewFileSink(output, "", false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}

	if err := sink.Render(entities.FrameResult{Success: false, Error: "Processing failed"}); err != nil {
		t.Errorf("Failed results should be skipped, got %v", err)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Error("Nothing should be written for a failed result")
	}

	bad := entities.FrameResult{Success: true, SequenceNumber: 1, Overlay: "%%%"}
	if err := sink.Render(bad); err == nil {
		t.Error("Expected an error for an undecodable overlay")
	}

	if _, err := NewFileSink("", "", false, zap.NewNop()); err == nil {
		t.Error("Expected an error for an empty output path")
	}
}
