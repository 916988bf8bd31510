package capture

import (
	"errors"
	"image"
	"image/color"
	"reflect"
	"testing"
	"time"
)

type fakeCamera struct {
	fail   bool
	reads  int
	closes int
}

func (c *fakeCamera) ReadFrame() (image.Image, bool) {
	c.reads++
	if c.fail {
		return nil, false
	}
	img := image.NewRGBA(image.Rect(0, 0, 80, 60))
	for y := 0; y < 60; y++ {
		for x := 0; x < 80; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 100, 255})
		}
	}
	return img, true
}

func (c *fakeCamera) Close() error {
	c.closes++
	return nil
}

type fakeDisplay struct {
	shows   int
	flashes []time.Duration
	clears  int
}

func (d *fakeDisplay) Show(image.Image) { d.shows++ }
func (d *fakeDisplay) Flash(dur time.Duration) { d.flashes = append(d.flashes, dur) }
func (d *fakeDisplay) Clear() { d.clears++ }

type fakeOverlays struct{}

func (fakeOverlays) Active() bool { return true }

func (fakeOverlays) Overlay(i int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 6))
	img.Set(0, 0, color.NRGBA{uint8(i * 50), 0, 0, 255})
	return img
}

type recorder struct {
	counts   []int
	captured []Shot
	done     int
	failed   []error
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		Countdown: func(n int) { r.counts = append(r.counts, n) },
		Captured:  func(s Shot) { r.captured = append(r.captured, s) },
		Done:      func(*Gallery) { r.done++ },
		Failed:    func(err error) { r.failed = append(r.failed, err) },
	}
}

func testConfig() Config {
	return Config{
		CountdownDuration: 5,
		TickInterval:      time.Second,
		FlashDuration:     100 * time.Millisecond,
		PreviewInterval:   100 * time.Millisecond,
		Shots:             8,
		ShotSize:          image.Pt(64, 48),
		PreviewSize:       image.Pt(32, 24),
		MaxMissedFrames:   5,
	}
}

type rig struct {
	sched *Manual
	cam   *fakeCamera
	disp  *fakeDisplay
	rec   *recorder
	seq   *Sequencer
}

func newRig(cfg Config, overlays Overlays) *rig {
	r := &rig{
		sched: NewManual(),
		cam:   &fakeCamera{},
		disp:  &fakeDisplay{},
		rec:   &recorder{},
	}
	r.seq = New(cfg, r.sched, r.cam, r.disp, overlays, NewGallery(cfg.Shots), r.rec.hooks())
	return r
}

func TestOverlayIndex(t *testing.T) {
	seen := map[int]int{}
	for i := 0; i < 8; i++ {
		got := OverlayIndex(i)
		if want := (i / 2) % 4; got != want {
			t.Errorf("OverlayIndex(%d) = %d, want %d", i, got, want)
		}
		if got < 0 || got > 3 {
			t.Errorf("OverlayIndex(%d) = %d, out of range", i, got)
		}
		seen[got]++
	}
	for i := 0; i < 4; i++ {
		if seen[i] != 2 {
			t.Errorf("overlay %d used %d times, want 2", i, seen[i])
		}
	}
}

func TestFullSession(t *testing.T) {
	r := newRig(testConfig(), fakeOverlays{})
	r.seq.Start()
	r.seq.Start()

	r.sched.Advance(60 * time.Second)

	if got := r.seq.State(); got != Done {
		t.Fatalf("state = %s, want done", got)
	}
	if got := r.seq.Gallery().Len(); got != 8 {
		t.Errorf("gallery = %d shots, want 8", got)
	}
	if r.cam.closes != 1 {
		t.Errorf("camera closed %d times, want 1", r.cam.closes)
	}
	if r.rec.done != 1 {
		t.Errorf("done hook called %d times, want 1", r.rec.done)
	}
	if len(r.disp.flashes) != 8 || r.disp.clears != 8 {
		t.Errorf("flashes = %d, clears = %d, want 8 each", len(r.disp.flashes), r.disp.clears)
	}
	if r.disp.shows == 0 {
		t.Error("live preview never showed a frame")
	}

	var overlays []int
	for i, s := range r.rec.captured {
		if s.Index != i {
			t.Errorf("shot %d has index %d", i, s.Index)
		}
		if b := s.Image.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
			t.Errorf("shot %d bounds = %v, want 64x48", i, b)
		}
		overlays = append(overlays, s.Overlay)
	}
	if want := []int{0, 0, 1, 1, 2, 2, 3, 3}; !reflect.DeepEqual(overlays, want) {
		t.Errorf("overlays = %v, want %v", overlays, want)
	}

	// Nothing more happens once the session is done.
	reads := r.cam.reads
	r.sched.Advance(time.Minute)
	if r.cam.reads != reads {
		t.Errorf("camera read %d more times after done", r.cam.reads-reads)
	}
	if r.cam.closes != 1 || r.rec.done != 1 {
		t.Errorf("after done: closes = %d, done = %d, want 1 and 1", r.cam.closes, r.rec.done)
	}
	if r.sched.Pending() != 0 {
		t.Errorf("%d callbacks still pending after done", r.sched.Pending())
	}
}

func TestSessionTiming(t *testing.T) {
	r := newRig(testConfig(), nil)
	r.seq.Start()

	r.sched.Advance(0)
	if got := r.seq.State(); got != Countdown {
		t.Fatalf("state = %s, want countdown", got)
	}
	if got := r.seq.Remaining(); got != 5 {
		t.Errorf("remaining = %d, want 5", got)
	}

	r.sched.Advance(4999 * time.Millisecond)
	if got := r.seq.Gallery().Len(); got != 0 {
		t.Fatalf("gallery = %d before countdown ended", got)
	}

	r.sched.Advance(time.Millisecond)
	if got := r.seq.Gallery().Len(); got != 1 {
		t.Fatalf("gallery = %d after countdown, want 1", got)
	}
	if got := r.seq.State(); got != Flashing {
		t.Errorf("state = %s, want flashing", got)
	}
	if s, _ := r.seq.Gallery().Shot(0); s.Overlay != -1 {
		t.Errorf("overlay = %d without a theme, want -1", s.Overlay)
	}

	r.sched.Advance(100 * time.Millisecond)
	if got := r.seq.State(); got != Countdown {
		t.Errorf("state after flash = %s, want countdown", got)
	}
	if want := []int{5, 4, 3, 2, 1, 0, 5}; !reflect.DeepEqual(r.rec.counts, want) {
		t.Errorf("countdown = %v, want %v", r.rec.counts, want)
	}
}

func TestManualTrigger(t *testing.T) {
	r := newRig(testConfig(), nil)
	r.seq.Start()
	r.sched.Advance(2 * time.Second)
	if got := r.seq.Remaining(); got != 3 {
		t.Fatalf("remaining = %d, want 3", got)
	}

	r.seq.Trigger()
	r.sched.Advance(0)
	if got := r.seq.Gallery().Len(); got != 1 {
		t.Fatalf("gallery = %d after trigger, want 1", got)
	}

	// A second trigger while the first is still flashing is ignored.
	r.seq.Trigger()
	r.sched.Advance(0)
	if got := r.seq.Gallery().Len(); got != 1 {
		t.Errorf("gallery = %d after re-entrant trigger, want 1", got)
	}

	r.sched.Advance(100 * time.Millisecond)
	r.sched.Advance(999 * time.Millisecond)
	if want := []int{5, 4, 3, 5}; !reflect.DeepEqual(r.rec.counts, want) {
		t.Errorf("countdown = %v, want %v", r.rec.counts, want)
	}
	if got := r.seq.Gallery().Len(); got != 1 {
		t.Errorf("gallery = %d, cancelled countdown fired", got)
	}

	r.sched.Advance(time.Millisecond)
	if want := []int{5, 4, 3, 5, 4}; !reflect.DeepEqual(r.rec.counts, want) {
		t.Errorf("countdown = %v, want %v", r.rec.counts, want)
	}
}

func TestTriggerBeforeStart(t *testing.T) {
	r := newRig(testConfig(), nil)
	r.seq.Trigger()
	r.sched.Advance(0)
	if got := r.seq.Gallery().Len(); got != 1 {
		t.Fatalf("gallery = %d after trigger from idle, want 1", got)
	}

	r.seq.Start()
	r.sched.Advance(100 * time.Millisecond)
	if got := r.seq.State(); got != Countdown {
		t.Errorf("state = %s, want countdown", got)
	}
	if want := []int{5}; !reflect.DeepEqual(r.rec.counts, want) {
		t.Errorf("countdown = %v, want %v", r.rec.counts, want)
	}
}

func TestTriggerAfterDone(t *testing.T) {
	cfg := testConfig()
	cfg.Shots = 1
	r := newRig(cfg, nil)
	r.seq.Start()
	r.sched.Advance(10 * time.Second)
	if got := r.seq.State(); got != Done {
		t.Fatalf("state = %s, want done", got)
	}

	r.seq.Trigger()
	r.sched.Advance(time.Second)
	if got := r.seq.Gallery().Len(); got != 1 {
		t.Errorf("gallery = %d after trigger in done, want 1", got)
	}
	if r.cam.closes != 1 {
		t.Errorf("camera closed %d times, want 1", r.cam.closes)
	}
}

func TestFailedReadIsSkipped(t *testing.T) {
	cfg := testConfig()
	cfg.MaxMissedFrames = 0
	r := newRig(cfg, nil)
	r.seq.Start()
	r.sched.Advance(0)

	r.cam.fail = true
	r.seq.Trigger()
	r.sched.Advance(time.Second)
	if got := r.seq.Gallery().Len(); got != 0 {
		t.Fatalf("gallery = %d with a failing camera, want 0", got)
	}
	if got := r.seq.State(); got != Capturing {
		t.Errorf("state = %s, want capturing", got)
	}

	r.cam.fail = false
	r.sched.Advance(100 * time.Millisecond)
	if got := r.seq.Gallery().Len(); got != 1 {
		t.Errorf("gallery = %d after camera recovered, want 1", got)
	}
}

func TestCameraStall(t *testing.T) {
	r := newRig(testConfig(), nil)
	r.cam.fail = true
	r.seq.Start()
	r.sched.Advance(10 * time.Second)

	if got := r.seq.State(); got != Failed {
		t.Fatalf("state = %s, want failed", got)
	}
	if len(r.rec.failed) != 1 || !errors.Is(r.rec.failed[0], ErrCameraStalled) {
		t.Errorf("failed hook = %v, want one ErrCameraStalled", r.rec.failed)
	}
	if r.cam.closes != 1 {
		t.Errorf("camera closed %d times, want 1", r.cam.closes)
	}
	if r.rec.done != 0 {
		t.Errorf("done hook called %d times after failure", r.rec.done)
	}
}

func TestStop(t *testing.T) {
	r := newRig(testConfig(), nil)
	r.seq.Start()
	r.sched.Advance(7 * time.Second)

	r.seq.Stop()
	r.seq.Stop()
	r.sched.Advance(time.Minute)

	if got := r.seq.State(); got != Failed {
		t.Errorf("state = %s, want failed", got)
	}
	if r.cam.closes != 1 {
		t.Errorf("camera closed %d times, want 1", r.cam.closes)
	}
	if got := r.seq.Gallery().Len(); got != 1 {
		t.Errorf("gallery = %d, want 1", got)
	}
	if len(r.rec.failed) != 0 {
		t.Errorf("failed hook called on stop: %v", r.rec.failed)
	}
}

func TestZeroCountdown(t *testing.T) {
	cfg := testConfig()
	cfg.CountdownDuration = 0
	cfg.Shots = 2
	r := newRig(cfg, nil)
	r.seq.Start()
	r.sched.Advance(time.Second)
	if got := r.seq.State(); got != Done {
		t.Errorf("state = %s, want done", got)
	}
}
