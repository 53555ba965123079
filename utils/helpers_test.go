package utils_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/bodrovdev/image-enhancer/utils"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A}, "png"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "webp"},
		{"bmp", []byte{'B', 'M', 0x36, 0x00}, "bmp"},
		{"tiff little endian", []byte{'I', 'I', 0x2A, 0x00}, "tiff"},
		{"tiff big endian", []byte{'M', 'M', 0x00, 0x2A}, "tiff"},
		{"text", []byte("hello world"), "unknown"},
		{"too short", []byte{0xFF}, "unknown"},
		{"empty", nil, "unknown"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := utils.DetectFormat(tc.data); got != tc.want {
				t.Errorf("DetectFormat: got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestScaleDimensions(t *testing.T) {
	tests := []struct {
		srcW, srcH, targetW, targetH int
		wantW, wantH                 int
	}{
		{800, 600, 400, 0, 400, 300},
		{800, 600, 0, 300, 400, 300},
		{800, 600, 200, 200, 200, 200},
		{800, 600, 0, 0, 800, 600},
		{1920, 1080, 960, 0, 960, 540},
	}
	for _, tc := range tests {
		gotW, gotH := utils.ScaleDimensions(tc.srcW, tc.srcH, tc.targetW, tc.targetH)
		if gotW != tc.wantW || gotH != tc.wantH {
			t.Errorf("ScaleDimensions(%d,%d,%d,%d) = %d,%d; want %d,%d",
				tc.srcW, tc.srcH, tc.targetW, tc.targetH, gotW, gotH, tc.wantW, tc.wantH)
		}
	}
}

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{2 * 1024 * 1024, "2.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tc := range tests {
		if got := utils.FormatFileSize(tc.bytes); got != tc.want {
			t.Errorf("FormatFileSize(%d) = %q, want %q", tc.bytes, got, tc.want)
		}
	}
}

func TestDrainReader(t *testing.T) {
	payload := strings.Repeat("x", 100_000)
	buf, err := utils.DrainReader(context.Background(), strings.NewReader(payload), 4096)
	if err != nil {
		t.Fatalf("DrainReader: %v", err)
	}
	defer utils.ReleaseBuffer(buf)
	if buf.Len() != len(payload) {
		t.Errorf("drained %d bytes, want %d", buf.Len(), len(payload))
	}
}

func TestDrainReader_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := utils.DrainReader(ctx, strings.NewReader("data"), 0); err == nil {
		t.Error("expected context cancellation error")
	}
}

func TestLimitedReader(t *testing.T) {
	src := bytes.NewReader(make([]byte, 100))
	lr := &utils.LimitedReader{R: src, Max: 50}

	buf := make([]byte, 200)
	total := 0
	for {
		n, err := lr.Read(buf)
		total += n
		if err != nil {
			break
		}
	}
	if total > 50 {
		t.Errorf("read %d bytes past the 50-byte limit", total)
	}
}

func TestCloneBytes(t *testing.T) {
	src := []byte{1, 2, 3}
	clone := utils.CloneBytes(src)
	src[0] = 9
	if clone[0] != 1 {
		t.Error("clone shares backing array with source")
	}
}
