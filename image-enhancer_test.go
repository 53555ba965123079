package imageenhancer_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"sync"
	"testing"
	"time"

	imageenhancer "github.com/bodrovdev/image-enhancer"
	"github.com/bodrovdev/image-enhancer/config"
	"github.com/bodrovdev/image-enhancer/core"
	apperrors "github.com/bodrovdev/image-enhancer/errors"
	"github.com/bodrovdev/image-enhancer/hooks"
)

// ── Test helpers ──────────────────────────────────────────────────────────────

func newGradientJPEG(t testing.TB, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: 120, A: 255,
			})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode test jpeg: %v", err)
	}
	return buf.Bytes()
}

func newAlphaPNG(t testing.TB, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 50, G: 50, B: 200, A: uint8(x % 256)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func newEnhancer(t *testing.T, mutate func(*config.Config)) *imageenhancer.Enhancer {
	t.Helper()
	cfg := imageenhancer.DefaultConfig()
	cfg.TempDir = t.TempDir()
	if mutate != nil {
		mutate(&cfg)
	}
	enh, err := imageenhancer.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return enh
}

// ── Mode tests ────────────────────────────────────────────────────────────────

func TestEnhance_HD(t *testing.T) {
	enh := newEnhancer(t, nil)
	raw := newGradientJPEG(t, 800, 600)

	result, err := enh.Enhance(context.Background(), raw, imageenhancer.HD())
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if result.Width != 1920 || result.Height != 1080 {
		t.Errorf("dimensions: got %dx%d, want 1920x1080", result.Width, result.Height)
	}
	if result.Format != core.FormatJPEG {
		t.Errorf("format: got %s, want jpeg", result.Format)
	}
	if result.Degraded {
		t.Error("unexpected degraded result")
	}
	if len(result.Bytes) == 0 {
		t.Error("encoded output is empty")
	}
}

func TestEnhance_UHD4K(t *testing.T) {
	enh := newEnhancer(t, nil)
	raw := newGradientJPEG(t, 640, 360)

	result, err := enh.Enhance(context.Background(), raw, imageenhancer.UHD4K())
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if result.Width != 3840 || result.Height != 2160 {
		t.Errorf("dimensions: got %dx%d, want 3840x2160", result.Width, result.Height)
	}
}

func TestEnhance_CustomScale_TargetTooLarge(t *testing.T) {
	enh := newEnhancer(t, nil)
	raw := newGradientJPEG(t, 4000, 3000) // 8x = 32000x24000, way past the pixel ceiling

	_, err := enh.Enhance(context.Background(), raw, imageenhancer.CustomScale(8, imageenhancer.Max))
	if err == nil {
		t.Fatal("expected target resolution error, got nil")
	}
	if !apperrors.IsKind(err, apperrors.KindTargetResolutionTooLarge) {
		t.Errorf("kind: got %s, want %s", apperrors.KindOf(err), apperrors.KindTargetResolutionTooLarge)
	}
	if apperrors.IsDegradable(err) {
		t.Error("target resolution violations must be terminal, not degradable")
	}
	if apperrors.SuggestionOf(err) == "" {
		t.Error("expected a user-facing suggestion")
	}
}

func TestEnhance_CustomScale_InvalidFactor(t *testing.T) {
	enh := newEnhancer(t, nil)
	raw := newGradientJPEG(t, 100, 100)

	_, err := enh.Enhance(context.Background(), raw, imageenhancer.CustomScale(5, imageenhancer.Smart))
	if err == nil {
		t.Fatal("expected error for unsupported factor 5")
	}
}

func TestEnhance_CustomScale_AlphaKeepsPNG(t *testing.T) {
	enh := newEnhancer(t, nil)
	raw := newAlphaPNG(t, 200, 150)

	result, err := enh.Enhance(context.Background(), raw, imageenhancer.CustomScale(2, imageenhancer.Smart))
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if result.Format != core.FormatPNG {
		t.Errorf("format: got %s, want png (alpha source)", result.Format)
	}
	if result.Width != 400 || result.Height != 300 {
		t.Errorf("dimensions: got %dx%d, want 400x300", result.Width, result.Height)
	}
}

func TestEnhance_DegradedFallback(t *testing.T) {
	// A tight scratch budget makes the 4K ladder fail mid-flight; the job must
	// finish at the halved target instead of failing outright.
	enh := newEnhancer(t, func(cfg *config.Config) {
		cfg.ScratchPixelBudget = 4_000_000
	})
	raw := newGradientJPEG(t, 800, 600)

	result, err := enh.Enhance(context.Background(), raw, imageenhancer.UHD4K())
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if !result.Degraded {
		t.Fatal("expected a degraded result")
	}
	if result.Width != 1920 || result.Height != 1080 {
		t.Errorf("degraded dimensions: got %dx%d, want 1920x1080", result.Width, result.Height)
	}

	_, _, degraded := enh.Stats()
	if degraded != 1 {
		t.Errorf("degraded count: got %d, want 1", degraded)
	}
}

func TestEnhance_ConvertFormat(t *testing.T) {
	enh := newEnhancer(t, nil)
	raw := newGradientJPEG(t, 300, 200)

	result, err := enh.Enhance(context.Background(), raw, imageenhancer.ConvertFormat(imageenhancer.PNG))
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if result.Format != core.FormatPNG {
		t.Errorf("format: got %s, want png", result.Format)
	}
	if result.Width != 300 || result.Height != 200 {
		t.Errorf("conversion must not resize: got %dx%d", result.Width, result.Height)
	}
}

func TestEnhance_Optimize(t *testing.T) {
	enh := newEnhancer(t, func(cfg *config.Config) {
		cfg.Optimize.TargetSizeBytes = 256 * 1024
	})
	raw := newGradientJPEG(t, 1200, 900)

	result, err := enh.Enhance(context.Background(), raw, imageenhancer.Optimize())
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if result.SizeBytes > 256*1024 {
		t.Errorf("optimized size %d exceeds 256KB target", result.SizeBytes)
	}
	if result.Width != 1200 || result.Height != 900 {
		t.Errorf("optimize must keep resolution: got %dx%d", result.Width, result.Height)
	}
}

// ── Input validation ──────────────────────────────────────────────────────────

func TestEnhance_EmptyInput(t *testing.T) {
	enh := newEnhancer(t, nil)

	_, err := enh.Enhance(context.Background(), nil, imageenhancer.HD())
	if !apperrors.IsKind(err, apperrors.KindUnsupportedOrCorruptInput) {
		t.Errorf("kind: got %s, want %s", apperrors.KindOf(err), apperrors.KindUnsupportedOrCorruptInput)
	}
}

func TestEnhance_CorruptInput(t *testing.T) {
	enh := newEnhancer(t, nil)
	garbage := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x01, 0x02, 0x03} // jpeg magic, junk body

	_, err := enh.Enhance(context.Background(), garbage, imageenhancer.HD())
	if !apperrors.IsKind(err, apperrors.KindUnsupportedOrCorruptInput) {
		t.Errorf("kind: got %s, want %s", apperrors.KindOf(err), apperrors.KindUnsupportedOrCorruptInput)
	}
}

func TestEnhance_InputTooLarge(t *testing.T) {
	enh := newEnhancer(t, func(cfg *config.Config) {
		cfg.MaxUploadBytes = 1024
	})
	raw := newGradientJPEG(t, 800, 600)

	_, err := enh.Enhance(context.Background(), raw, imageenhancer.HD())
	if !apperrors.IsKind(err, apperrors.KindUnsupportedOrCorruptInput) {
		t.Errorf("kind: got %s, want %s", apperrors.KindOf(err), apperrors.KindUnsupportedOrCorruptInput)
	}
}

func TestEnhance_SourceExceedsPixelCeiling(t *testing.T) {
	enh := newEnhancer(t, func(cfg *config.Config) {
		cfg.MaxPixelCount = 10_000
	})
	raw := newGradientJPEG(t, 200, 150) // 30,000 decoded pixels from a few KB of JPEG

	// Optimize has no scale target, so only the decode-side bound can catch
	// an oversized source.
	_, err := enh.Enhance(context.Background(), raw, imageenhancer.Optimize())
	if err == nil {
		t.Fatal("expected oversized source to be rejected, got nil")
	}
	if !apperrors.IsKind(err, apperrors.KindUnsupportedOrCorruptInput) {
		t.Errorf("kind: got %s, want %s", apperrors.KindOf(err), apperrors.KindUnsupportedOrCorruptInput)
	}
	if apperrors.IsDegradable(err) {
		t.Error("oversized source must be terminal, not degradable")
	}

	// The same source passes untouched once the ceiling covers it.
	relaxed := newEnhancer(t, func(cfg *config.Config) {
		cfg.MaxPixelCount = 40_000
	})
	if _, err := relaxed.Enhance(context.Background(), raw, imageenhancer.Optimize()); err != nil {
		t.Fatalf("Enhance under relaxed ceiling: %v", err)
	}
}

func TestEnhanceReader(t *testing.T) {
	enh := newEnhancer(t, nil)
	raw := newGradientJPEG(t, 400, 300)

	result, err := enh.EnhanceReader(context.Background(), bytes.NewReader(raw), imageenhancer.HD())
	if err != nil {
		t.Fatalf("EnhanceReader: %v", err)
	}
	if result.Width != 1920 {
		t.Errorf("width: got %d, want 1920", result.Width)
	}
}

// ── Concurrency and resources ─────────────────────────────────────────────────

// activeSampler records the highest gate occupancy seen during step execution.
type activeSampler struct {
	gate *core.Gate
	mu   sync.Mutex
	peak int64
}

func (s *activeSampler) BeforeStep(_ context.Context, _ string, _ *core.ImageData) {
	active := s.gate.Active()
	s.mu.Lock()
	if active > s.peak {
		s.peak = active
	}
	s.mu.Unlock()
}

func (s *activeSampler) AfterStep(_ context.Context, _ string, _ *core.ImageData, _ time.Duration, _ error) {
}

func TestEnhance_ConcurrencyBound(t *testing.T) {
	enh := newEnhancer(t, func(cfg *config.Config) {
		cfg.MaxConcurrentJobs = 2
	})
	sampler := &activeSampler{gate: enh.Inner().Gate()}
	enh.AddHook(sampler)

	raw := newGradientJPEG(t, 400, 300)
	const jobs = 8
	var wg sync.WaitGroup
	errs := make([]error, jobs)
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = enh.Enhance(context.Background(), raw, imageenhancer.HD())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("job %d: %v", i, err)
		}
	}
	if sampler.peak > 2 {
		t.Errorf("gate occupancy peaked at %d, bound is 2", sampler.peak)
	}
	if active := enh.Inner().Gate().Active(); active != 0 {
		t.Errorf("gate still holds %d slots after completion", active)
	}
}

func TestEnhance_QueueTimeout(t *testing.T) {
	enh := newEnhancer(t, func(cfg *config.Config) {
		cfg.MaxConcurrentJobs = 1
		cfg.QueueTimeout = 50 * time.Millisecond
	})

	// Occupy the only slot directly, then let a real job wait it out.
	adm, err := enh.Inner().Gate().Admit(context.Background(), "blocker")
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	defer adm.Release()

	raw := newGradientJPEG(t, 100, 100)
	_, err = enh.Enhance(context.Background(), raw, imageenhancer.HD())
	if !apperrors.IsKind(err, apperrors.KindQueueTimeout) {
		t.Errorf("kind: got %s, want %s", apperrors.KindOf(err), apperrors.KindQueueTimeout)
	}
}

func TestEnhance_ScopeCleanup(t *testing.T) {
	dir := t.TempDir()
	enh := newEnhancer(t, func(cfg *config.Config) {
		cfg.TempDir = dir
	})
	raw := newGradientJPEG(t, 200, 150)

	if _, err := enh.Enhance(context.Background(), raw, imageenhancer.HD()); err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	// A failing job must also leave nothing behind.
	if _, err := enh.Enhance(context.Background(), []byte("not an image"), imageenhancer.HD()); err == nil {
		t.Fatal("expected error for non-image input")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("workspace not cleaned up: %d leftover entries", len(entries))
	}
}

// ── Async submission ──────────────────────────────────────────────────────────

func TestSubmit_Async(t *testing.T) {
	enh := newEnhancer(t, nil)
	raw := newGradientJPEG(t, 400, 300)

	resultCh := make(chan core.JobOutcome, 1)
	enh.Submit(core.JobRequest{
		ID:       "async-1",
		Ctx:      context.Background(),
		Source:   raw,
		Mode:     imageenhancer.HD(),
		ResultCh: resultCh,
	})

	select {
	case out := <-resultCh:
		if out.Err != nil {
			t.Fatalf("async job error: %v", out.Err)
		}
		if out.Result.Width != 1920 {
			t.Errorf("async width: got %d, want 1920", out.Result.Width)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("async job timed out")
	}
}

// ── Hooks / metrics ───────────────────────────────────────────────────────────

func TestMetricsHook(t *testing.T) {
	enh := newEnhancer(t, nil)
	m := hooks.NewInMemoryMetrics()
	enh.SetMetrics(m)
	enh.AddHook(hooks.NewMetricsHook(m))

	raw := newGradientJPEG(t, 200, 150)
	if _, err := enh.Enhance(context.Background(), raw, imageenhancer.HD()); err != nil {
		t.Fatalf("Enhance: %v", err)
	}

	snap := m.Snapshot()
	if snap.StepCalls["scale"] == 0 {
		t.Error("scale step was not recorded in metrics")
	}
	if snap.StepCalls["encode"] == 0 {
		t.Error("encode step was not recorded in metrics")
	}
}

// ── Config validation ─────────────────────────────────────────────────────────

func TestConfigValidation(t *testing.T) {
	cfg := config.Default()
	cfg.DefaultQuality = 0 // invalid
	if err := config.Validate(cfg); err == nil {
		t.Error("expected validation error for quality=0")
	}

	cfg = config.Default()
	cfg.MaxConcurrentJobs = -1
	if _, err := imageenhancer.New(cfg); err == nil {
		t.Error("expected New to reject negative concurrency")
	}
}

// ── Benchmarks ────────────────────────────────────────────────────────────────

func BenchmarkEnhance_HD(b *testing.B) {
	cfg := imageenhancer.DefaultConfig()
	cfg.TempDir = b.TempDir()
	enh, err := imageenhancer.New(cfg)
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	raw := newGradientJPEG(b, 800, 600)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := enh.Enhance(context.Background(), raw, imageenhancer.HD()); err != nil {
			b.Fatalf("Enhance: %v", err)
		}
	}
}
