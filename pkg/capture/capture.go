// Package capture runs a timed photo session: countdown, shutter, flash, repeat.
//
// Every state transition runs inside a Scheduler callback, so a Sequencer is
// single-threaded even though Trigger may be called from any goroutine.
package capture

import (
	"errors"
	"image"
	"sync/atomic"
	"time"

	"github.com/tstromberg/stripbooth/pkg/compose"
	"k8s.io/klog/v2"
)

// ErrCameraStalled is reported when the camera stops producing frames.
var ErrCameraStalled = errors.New("camera produced no frames")

// Camera is a live frame source.
type Camera interface {
	// ReadFrame returns the next frame, or false when none is available this tick.
	ReadFrame() (image.Image, bool)
	Close() error
}

// Display shows frames and capture feedback.
type Display interface {
	Show(img image.Image)
	Flash(d time.Duration)
	Clear()
}

// Overlays supplies decorative frames by index.
type Overlays interface {
	Active() bool
	Overlay(i int) image.Image
}

// OverlayIndex maps a shot to its overlay: each of 4 overlays is used for 2 consecutive shots.
func OverlayIndex(shot int) int {
	return (shot / 2) % 4
}

// State is a Sequencer state.
type State int32

const (
	Idle State = iota
	Countdown
	Capturing
	Flashing
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Countdown:
		return "countdown"
	case Capturing:
		return "capturing"
	case Flashing:
		return "flashing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Config controls session timing and sizes.
type Config struct {
	// CountdownDuration is the number of ticks before each automatic shot.
	CountdownDuration int
	TickInterval      time.Duration
	FlashDuration     time.Duration
	PreviewInterval   time.Duration
	// Shots is the number of shots per session.
	Shots       int
	ShotSize    image.Point
	PreviewSize image.Point
	// MaxMissedFrames is the number of consecutive failed reads before giving up. 0 never gives up.
	MaxMissedFrames int
}

// DefaultConfig returns the timings of the basic booth flow.
func DefaultConfig() Config {
	return Config{
		CountdownDuration: 5,
		TickInterval:      time.Second,
		FlashDuration:     100 * time.Millisecond,
		PreviewInterval:   15 * time.Millisecond,
		Shots:             8,
		ShotSize:          image.Pt(1280, 960),
		PreviewSize:       image.Pt(640, 480),
		MaxMissedFrames:   200,
	}
}

// Hooks are called from the scheduler goroutine. Any of them may be nil.
type Hooks struct {
	Countdown func(remaining int)
	Captured  func(s Shot)
	Done      func(g *Gallery)
	Failed    func(err error)
}

// Sequencer owns the capture session state machine.
type Sequencer struct {
	cfg      Config
	sched    Scheduler
	cam      Camera
	disp     Display
	overlays Overlays
	gallery  *Gallery
	hooks    Hooks

	state     atomic.Int32
	remaining atomic.Int32
	started   atomic.Bool

	// Only touched from scheduler callbacks.
	tick     Timer
	retry    Timer
	inFlight bool
	misses   int
	released bool
}

// New returns a Sequencer in the Idle state. overlays may be nil.
func New(cfg Config, sched Scheduler, cam Camera, disp Display, overlays Overlays, g *Gallery, hooks Hooks) *Sequencer {
	return &Sequencer{
		cfg:      cfg,
		sched:    sched,
		cam:      cam,
		disp:     disp,
		overlays: overlays,
		gallery:  g,
		hooks:    hooks,
	}
}

// State returns the current state.
func (s *Sequencer) State() State {
	return State(s.state.Load())
}

// Remaining returns the countdown value on display.
func (s *Sequencer) Remaining() int {
	return int(s.remaining.Load())
}

// Gallery returns the gallery shots are appended to.
func (s *Sequencer) Gallery() *Gallery {
	return s.gallery
}

// Start begins the session: the first countdown and the live preview. Only the first call has an effect.
func (s *Sequencer) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	klog.V(1).Infof("capture session starting: %d shots, countdown %d", s.cfg.Shots, s.cfg.CountdownDuration)
	s.sched.After(0, func() {
		if s.State() != Idle {
			return
		}
		s.startCountdown()
	})
	s.sched.After(0, s.preview)
}

// Trigger takes a picture now. It is ignored while a capture is in progress or after the session ends.
func (s *Sequencer) Trigger() {
	s.sched.After(0, s.trigger)
}

// Stop abandons the session and releases the camera.
func (s *Sequencer) Stop() {
	s.sched.After(0, func() {
		switch s.State() {
		case Done, Failed:
			return
		}
		s.stopTimers()
		s.setState(Failed)
		s.release()
		klog.Infof("capture session stopped with %d shots", s.gallery.Len())
	})
}

func (s *Sequencer) setState(st State) {
	old := State(s.state.Swap(int32(st)))
	if old != st {
		klog.V(1).Infof("capture: %s -> %s", old, st)
	}
}

func (s *Sequencer) trigger() {
	switch st := s.State(); st {
	case Idle, Countdown:
		klog.V(1).Infof("manual trigger at count %d", s.Remaining())
		s.stopTimers()
		s.capture()
	default:
		klog.V(1).Infof("manual trigger ignored in state %s", st)
	}
}

func (s *Sequencer) stopTimers() {
	if s.tick != nil {
		s.tick.Stop()
		s.tick = nil
	}
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
}

func (s *Sequencer) startCountdown() {
	s.setState(Countdown)
	s.remaining.Store(int32(s.cfg.CountdownDuration))
	if s.cfg.CountdownDuration <= 0 {
		s.capture()
		return
	}
	s.announce()
	s.tick = s.sched.After(s.cfg.TickInterval, s.onTick)
}

func (s *Sequencer) onTick() {
	s.tick = nil
	if s.State() != Countdown {
		return
	}
	n := s.remaining.Add(-1)
	s.announce()
	if n > 0 {
		s.tick = s.sched.After(s.cfg.TickInterval, s.onTick)
		return
	}
	s.capture()
}

func (s *Sequencer) announce() {
	if s.hooks.Countdown != nil {
		s.hooks.Countdown(s.Remaining())
	}
}

func (s *Sequencer) capture() {
	if s.inFlight {
		return
	}
	s.inFlight = true
	s.setState(Capturing)
	s.shoot()
}

// shoot reads a frame for the shutter. A failed read is retried after PreviewInterval.
func (s *Sequencer) shoot() {
	s.retry = nil
	if s.State() != Capturing {
		return
	}

	frame, ok := s.cam.ReadFrame()
	if !ok {
		klog.V(1).Infof("shutter: no frame, retrying")
		if s.miss() {
			return
		}
		s.retry = s.sched.After(s.cfg.PreviewInterval, s.shoot)
		return
	}
	s.misses = 0

	idx := s.gallery.Len()
	shot := Shot{Overlay: -1, Image: s.render(frame, s.cfg.ShotSize, idx)}
	if s.overlays != nil && s.overlays.Active() {
		shot.Overlay = OverlayIndex(idx)
	}

	shot, err := s.gallery.Add(shot)
	if err != nil {
		klog.Errorf("add shot: %v", err)
		s.inFlight = false
		s.finish()
		return
	}
	klog.Infof("captured shot %d/%d", shot.Index+1, s.cfg.Shots)

	if s.hooks.Captured != nil {
		s.hooks.Captured(shot)
	}

	s.setState(Flashing)
	s.disp.Flash(s.cfg.FlashDuration)
	s.sched.After(s.cfg.FlashDuration, s.afterFlash)
}

func (s *Sequencer) afterFlash() {
	if s.State() != Flashing {
		return
	}
	s.disp.Clear()
	s.inFlight = false
	if s.gallery.Len() < s.cfg.Shots {
		s.startCountdown()
		return
	}
	s.finish()
}

func (s *Sequencer) finish() {
	if st := s.State(); st == Done || st == Failed {
		return
	}
	s.stopTimers()
	s.release()
	s.setState(Done)
	klog.Infof("capture session complete: %d shots", s.gallery.Len())
	if s.hooks.Done != nil {
		s.hooks.Done(s.gallery)
	}
}

func (s *Sequencer) fail(err error) {
	s.stopTimers()
	s.release()
	s.setState(Failed)
	klog.Errorf("capture session failed: %v", err)
	if s.hooks.Failed != nil {
		s.hooks.Failed(err)
	}
}

// release closes the camera exactly once.
func (s *Sequencer) release() {
	if s.released {
		return
	}
	s.released = true
	if err := s.cam.Close(); err != nil {
		klog.Warningf("camera close: %v", err)
	}
}

// miss records a failed read and reports whether the session has failed because of it.
func (s *Sequencer) miss() bool {
	s.misses++
	if s.cfg.MaxMissedFrames > 0 && s.misses >= s.cfg.MaxMissedFrames {
		s.fail(ErrCameraStalled)
		return true
	}
	return false
}

// preview pushes one mirrored, overlaid frame to the display and reschedules itself.
func (s *Sequencer) preview() {
	switch s.State() {
	case Done, Failed:
		return
	}
	n := s.gallery.Len()
	if n >= s.cfg.Shots {
		return
	}

	frame, ok := s.cam.ReadFrame()
	switch {
	case !ok:
		if s.miss() {
			return
		}
	case s.State() != Flashing:
		s.misses = 0
		s.disp.Show(s.render(frame, s.cfg.PreviewSize, n))
	default:
		s.misses = 0
	}

	s.sched.After(s.cfg.PreviewInterval, s.preview)
}

func (s *Sequencer) render(frame image.Image, size image.Point, shot int) *image.RGBA {
	img := compose.Fit(compose.Mirror(frame), size.X, size.Y)
	if s.overlays != nil && s.overlays.Active() {
		img = compose.Overlay(img, s.overlays.Overlay(OverlayIndex(shot)))
	}
	return img
}
