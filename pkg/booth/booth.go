// Package booth runs the photo booth wizard: choose a frame theme, take 8 shots,
// pick 4 of them and a background color, then save and hand out the strip.
//
// A Booth owns exactly one Session at a time. Reset discards it and starts over.
package booth

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/tstromberg/stripbooth/pkg/capture"
	"github.com/tstromberg/stripbooth/pkg/compose"
	"github.com/tstromberg/stripbooth/pkg/deliver"
	"github.com/tstromberg/stripbooth/pkg/frameset"
	"github.com/tstromberg/stripbooth/pkg/ledger"
	"github.com/tstromberg/stripbooth/pkg/selection"
	"github.com/tstromberg/stripbooth/pkg/serve"
)

// ErrWrongStage is returned for an operation the current stage does not allow.
var ErrWrongStage = errors.New("not allowed at this stage")

// TagTimeout bounds a background tagging request.
var TagTimeout = time.Minute

// Stage is a step of the wizard.
type Stage int

const (
	ChooseTheme Stage = iota
	Capture
	Select
	Output
)

func (s Stage) String() string {
	switch s {
	case ChooseTheme:
		return "choose-theme"
	case Capture:
		return "capture"
	case Select:
		return "select"
	case Output:
		return "output"
	}
	return "unknown"
}

// Session is everything one guest group produces.
type Session struct {
	ID        string
	Started   time.Time
	Theme     *frameset.FrameSet
	Gallery   *capture.Gallery
	Selection *selection.Selection
	Stage     Stage
}

// Recorder stores delivered strips.
type Recorder interface {
	Record(ctx context.Context, e ledger.Entry) (int64, error)
	SetTags(ctx context.Context, id int64, tags string) error
}

// Tagger suggests keywords for a saved strip.
type Tagger interface {
	Tags(ctx context.Context, path string) ([]string, error)
}

// KeywordWriter stores keywords in a saved strip.
type KeywordWriter interface {
	WriteKeywords(path string, tags []string) error
}

// Deps are optional collaborators. Any of them may be nil.
type Deps struct {
	Ledger   Recorder
	Tagger   Tagger
	Keywords KeywordWriter
	// Now defaults to time.Now.
	Now func() time.Time
}

// Events are notifications for the user interface. Any of them may be nil.
// Capture events arrive on the scheduler goroutine.
type Events struct {
	Countdown     func(remaining int)
	Captured      func(s capture.Shot)
	CaptureDone   func(g *capture.Gallery)
	CaptureFailed func(err error)
	// Preview receives a fresh strip preview after every selection change.
	Preview func(img image.Image)
	// Tagged reports keywords added to a saved strip.
	Tagged func(path string, tags []string)
}

// Result describes a delivered strip.
type Result struct {
	Path string
	// URL is what the QR code encodes.
	URL     string
	QR      image.Image
	PDF     string
	Archive string
	// ID is the ledger row, or 0 without a ledger.
	ID int64
}

// Booth is the wizard controller.
type Booth struct {
	cfg      Config
	deps     Deps
	events   Events
	renderer *compose.Renderer

	mu      sync.Mutex
	catalog *frameset.Catalog
	sess    *Session
	seq     *capture.Sequencer

	bg sync.WaitGroup
}

// New scans the themes directory and opens the first session.
func New(cfg Config, deps Deps, events Events) (*Booth, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	c, err := frameset.Scan(cfg.ThemesDir)
	if err != nil {
		return nil, fmt.Errorf("scan themes: %w", err)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	b := &Booth{
		cfg:      cfg,
		deps:     deps,
		events:   events,
		renderer: compose.NewRenderer(cfg.Label, cfg.FontPath),
		catalog:  c,
	}
	b.sess = b.newSession()
	return b, nil
}

func (b *Booth) newSession() *Session {
	sel := selection.New(capture.DefaultConfig().Shots)
	if err := sel.SetColor(b.cfg.Color); err != nil {
		klog.Warningf("initial color: %v", err)
	}
	sel.OnChange = b.selectionChanged

	s := &Session{
		ID:        uuid.NewString(),
		Started:   b.deps.Now(),
		Theme:     frameset.None(),
		Gallery:   capture.NewGallery(capture.DefaultConfig().Shots),
		Selection: sel,
		Stage:     ChooseTheme,
	}
	klog.Infof("session %s started", s.ID)
	return s
}

// expect fails unless the session is at stage st. Callers hold b.mu.
func (b *Booth) expect(st Stage) error {
	if b.sess.Stage != st {
		return fmt.Errorf("%w: at %s, need %s", ErrWrongStage, b.sess.Stage, st)
	}
	return nil
}

// Session returns the current session.
func (b *Booth) Session() *Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sess
}

// Stage returns the current stage.
func (b *Booth) Stage() Stage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sess.Stage
}

// Catalog returns the last theme scan.
func (b *Booth) Catalog() *frameset.Catalog {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.catalog
}

// SetCatalog replaces the theme list, for example after the themes directory changed.
func (b *Booth) SetCatalog(c *frameset.Catalog) {
	b.mu.Lock()
	defer b.mu.Unlock()
	klog.V(1).Infof("theme catalog updated: %v", c.Names())
	b.catalog = c
}

// Themes lists the selectable theme names.
func (b *Booth) Themes() []string {
	return b.Catalog().Names()
}

// ChooseTheme loads the named theme for this session. An empty name means no frame.
func (b *Booth) ChooseTheme(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.expect(ChooseTheme); err != nil {
		return err
	}

	fs := frameset.None()
	if name != "" {
		var err error
		fs, err = frameset.Load(b.cfg.ThemesDir, name)
		if err != nil {
			return fmt.Errorf("load theme: %w", err)
		}
	}
	b.sess.Theme = fs
	b.sess.Stage = Capture
	klog.Infof("session %s: theme %q", b.sess.ID, fs.Name())
	return nil
}

// StartCapture starts the shot sequence on sched. The camera is released when the sequence ends.
func (b *Booth) StartCapture(sched capture.Scheduler, cam capture.Camera, disp capture.Display) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.expect(Capture); err != nil {
		return err
	}
	if b.seq != nil {
		return fmt.Errorf("%w: capture already running", ErrWrongStage)
	}

	var seq *capture.Sequencer
	hooks := capture.Hooks{
		Countdown: func(n int) {
			if b.events.Countdown != nil {
				b.events.Countdown(n)
			}
		},
		Captured: func(s capture.Shot) {
			if b.events.Captured != nil {
				b.events.Captured(s)
			}
		},
		Done:   func(g *capture.Gallery) { b.captureDone(seq, g) },
		Failed: func(err error) { b.captureFailed(seq, err) },
	}
	seq = capture.New(b.cfg.CaptureConfig(), sched, cam, disp, b.sess.Theme, b.sess.Gallery, hooks)
	b.seq = seq
	seq.Start()
	return nil
}

func (b *Booth) captureDone(seq *capture.Sequencer, g *capture.Gallery) {
	b.mu.Lock()
	if b.seq != seq {
		b.mu.Unlock()
		return
	}
	b.seq = nil
	b.sess.Stage = Select
	b.mu.Unlock()

	if b.events.CaptureDone != nil {
		b.events.CaptureDone(g)
	}
	b.selectionChanged()
}

// captureFailed keeps the session at the capture stage with an empty gallery, so capture can be restarted.
func (b *Booth) captureFailed(seq *capture.Sequencer, err error) {
	b.mu.Lock()
	if b.seq != seq {
		b.mu.Unlock()
		return
	}
	b.seq = nil
	b.sess.Gallery.Release()
	b.sess.Gallery = capture.NewGallery(b.sess.Gallery.Cap())
	b.mu.Unlock()

	klog.Errorf("capture failed: %v", err)
	if b.events.CaptureFailed != nil {
		b.events.CaptureFailed(err)
	}
}

// Trigger takes the next shot now.
func (b *Booth) Trigger() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.expect(Capture); err != nil {
		return err
	}
	if b.seq == nil {
		return fmt.Errorf("%w: capture not started", ErrWrongStage)
	}
	b.seq.Trigger()
	return nil
}

func (b *Booth) selecting() (*selection.Selection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.expect(Select); err != nil {
		return nil, err
	}
	return b.sess.Selection, nil
}

// Toggle adds or removes shot i from the strip.
func (b *Booth) Toggle(i int) error {
	sel, err := b.selecting()
	if err != nil {
		return err
	}
	sel.Toggle(i)
	return nil
}

// SetColor sets the strip background by palette name.
func (b *Booth) SetColor(name string) error {
	sel, err := b.selecting()
	if err != nil {
		return err
	}
	return sel.SetColor(name)
}

// Preview renders a small strip for the current selection, which may have fewer than 4 shots.
func (b *Booth) Preview() (*image.RGBA, error) {
	b.mu.Lock()
	if st := b.sess.Stage; st != Select && st != Output {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: no shots to preview at %s", ErrWrongStage, st)
	}
	shots := b.sess.Gallery.Images()
	sel := b.sess.Selection
	b.mu.Unlock()

	return b.renderer.Draft(shots, sel.Indices(), sel.Color().RGBA)
}

func (b *Booth) selectionChanged() {
	if b.events.Preview == nil {
		return
	}
	img, err := b.Preview()
	if err != nil {
		klog.V(1).Infof("preview: %v", err)
		return
	}
	b.events.Preview(img)
}

// CreateStrip renders, saves and delivers the strip. Without exactly 4 selected shots it
// returns compose.ErrSelectionSize and leaves everything as it was.
func (b *Booth) CreateStrip(ctx context.Context) (*Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.expect(Select); err != nil {
		return nil, err
	}
	sess := b.sess
	shots := sess.Gallery.Images()
	sel := sess.Selection.Indices()
	col := sess.Selection.Color()

	img, err := b.renderer.Render(shots, sel, col.RGBA, false)
	if err != nil {
		klog.Warningf("strip not created: %v", err)
		return nil, err
	}

	path, err := deliver.Save(img, b.cfg.ResultDir, b.deps.Now())
	if err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}
	res := &Result{Path: path, URL: serve.URL(b.cfg.BaseURL, path)}
	res.QR, err = deliver.QR(res.URL, deliver.QRSize)
	if err != nil {
		return nil, fmt.Errorf("qr: %w", err)
	}

	if b.cfg.PrintPDF {
		if res.PDF, err = deliver.PrintPDF(path); err != nil {
			klog.Errorf("print pdf: %v", err)
		}
	}

	if b.cfg.ArchiveDir != "" {
		if res.Archive, err = deliver.Archive(path, b.cfg.ArchiveDir, sess.ID); err != nil {
			klog.Errorf("archive: %v", err)
		}
		if b.cfg.SaveShots {
			if _, err := deliver.SaveShots(shots, filepath.Join(b.cfg.ArchiveDir, sess.ID)); err != nil {
				klog.Errorf("save shots: %v", err)
			}
		}
	}

	if b.deps.Ledger != nil {
		res.ID, err = b.deps.Ledger.Record(ctx, ledger.Entry{
			Session: sess.ID,
			Path:    path,
			Theme:   sess.Theme.Name(),
			Color:   col.Name,
			Label:   b.renderer.Label,
		})
		if err != nil {
			klog.Errorf("ledger: %v", err)
		}
	}

	if b.deps.Tagger != nil {
		b.bg.Add(1)
		go func() {
			defer b.bg.Done()
			b.tag(path, res.ID)
		}()
	}

	sess.Stage = Output
	klog.Infof("session %s: strip %s delivered as %s", sess.ID, path, res.URL)
	return res, nil
}

func (b *Booth) tag(path string, id int64) {
	ctx, cancel := context.WithTimeout(context.Background(), TagTimeout)
	defer cancel()

	tags, err := b.deps.Tagger.Tags(ctx, path)
	if err != nil {
		klog.Errorf("autotag %s: %v", path, err)
		return
	}
	if len(tags) == 0 {
		return
	}

	if b.deps.Keywords != nil {
		if err := b.deps.Keywords.WriteKeywords(path, tags); err != nil {
			klog.Errorf("write keywords: %v", err)
		}
	}
	if b.deps.Ledger != nil && id > 0 {
		if err := b.deps.Ledger.SetTags(ctx, id, strings.Join(tags, ",")); err != nil {
			klog.Errorf("ledger tags: %v", err)
		}
	}
	if b.events.Tagged != nil {
		b.events.Tagged(path, tags)
	}
}

// Reset abandons the current session, stopping a running capture, and starts a new one.
func (b *Booth) Reset() {
	b.mu.Lock()
	if b.seq != nil {
		b.seq.Stop()
		b.seq = nil
	}
	old := b.sess
	b.sess = b.newSession()
	b.mu.Unlock()

	old.Gallery.Release()
	klog.Infof("session %s reset", old.ID)
}

// Wait blocks until background work for delivered strips has finished.
func (b *Booth) Wait() {
	b.bg.Wait()
}
