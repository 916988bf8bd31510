package main

import (
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/anthonynsimon/bild/imgio"
	"k8s.io/klog/v2"
)

// fileDisplay is a headless display surface: the live view is written to a JPEG
// that an external viewer can poll, and flashes are reported on out.
type fileDisplay struct {
	path  string
	every time.Duration
	out   io.Writer

	mu   sync.Mutex
	last time.Time
}

func newFileDisplay(dir string, every time.Duration, out io.Writer) (*fileDisplay, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	return &fileDisplay{path: filepath.Join(dir, "live.jpg"), every: every, out: out}, nil
}

func (d *fileDisplay) Show(img image.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if time.Since(d.last) < d.every {
		return
	}
	d.last = time.Now()

	tmp := d.path + ".tmp"
	if err := imgio.Save(tmp, img, imgio.JPEGEncoder(80)); err != nil {
		klog.V(1).Infof("live view: %v", err)
		return
	}
	if err := os.Rename(tmp, d.path); err != nil {
		klog.V(1).Infof("live view: %v", err)
	}
}

func (d *fileDisplay) Flash(dur time.Duration) {
	fmt.Fprintf(d.out, "  *** flash (%s) ***\n", dur)
}

func (d *fileDisplay) Clear() {}

// saveImage writes img as a PNG, for previews and QR codes.
func saveImage(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if err := imgio.Save(path, img, imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}
