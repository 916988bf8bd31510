// Package frameset loads decorative photo frame themes from a directory tree.
//
// Each subdirectory of the themes root is a theme holding overlay images and an
// optional icon.png. A root-level noframe.png is the icon for "no theme".
package frameset

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/anthonynsimon/bild/clone"
	"github.com/anthonynsimon/bild/imgio"
	"github.com/karrick/godirwalk"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

const (
	// Overlays is the number of overlays a theme provides.
	Overlays = 4

	iconName    = "icon.png"
	noFrameName = "noframe.png"
)

var (
	// ErrTooFewOverlays is returned when a theme has fewer than 4 usable images.
	ErrTooFewOverlays = errors.New("theme has too few overlay images")
	// ErrNoTheme is returned for a theme name that is not in the catalog.
	ErrNoTheme = errors.New("no such theme")
)

// Theme is a selectable frame theme.
type Theme struct {
	Name string
	Dir  string
	// Icon is the path to icon.png, or empty.
	Icon string
	// Images are the eligible overlay paths in sorted order.
	Images []string
}

// Catalog lists the themes found under Root.
type Catalog struct {
	Root   string
	Themes []Theme
	// NoFrameIcon is the path to noframe.png, or empty.
	NoFrameIcon string
	// Created is set when Root did not exist and was created by Scan.
	Created bool
	Scanned time.Time
}

// Names returns the theme names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Themes))
	for _, t := range c.Themes {
		names = append(names, t.Name)
	}
	return names
}

// Theme returns the named theme.
func (c *Catalog) Theme(name string) (Theme, bool) {
	for _, t := range c.Themes {
		if t.Name == name {
			return t, true
		}
	}
	return Theme{}, false
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// isImage reports whether name is an eligible overlay file.
func isImage(name string) bool {
	if hidden(name) || strings.EqualFold(name, iconName) {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

// Scan lists the themes under root. A missing root is created and yields an empty catalog.
func Scan(root string) (*Catalog, error) {
	c := &Catalog{Root: root, Scanned: time.Now()}

	st, err := os.Stat(root)
	switch {
	case errors.Is(err, os.ErrNotExist):
		klog.Infof("themes directory %s does not exist, creating it", root)
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir: %w", err)
		}
		c.Created = true
		return c, nil
	case err != nil:
		return nil, fmt.Errorf("stat: %w", err)
	case !st.IsDir():
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	des, err := godirwalk.ReadDirents(root, nil)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	slices.SortFunc(des, func(a, b *godirwalk.Dirent) int { return strings.Compare(a.Name(), b.Name()) })

	for _, de := range des {
		name := de.Name()
		if hidden(name) {
			continue
		}
		path := filepath.Join(root, name)
		if name == noFrameName {
			c.NoFrameIcon = path
			continue
		}

		isDir, err := de.IsDirOrSymlinkToDir()
		if err != nil || !isDir {
			continue
		}

		t, err := readTheme(path)
		if err != nil {
			klog.Warningf("skipping theme %s: %v", path, err)
			continue
		}
		if len(t.Images) == 0 {
			klog.V(1).Infof("skipping %s: no overlay images", path)
			continue
		}
		c.Themes = append(c.Themes, t)
	}

	klog.V(1).Infof("found %d themes in %s", len(c.Themes), root)
	return c, nil
}

func readTheme(dir string) (Theme, error) {
	t := Theme{Name: filepath.Base(dir), Dir: dir}

	names, err := godirwalk.ReadDirnames(dir, nil)
	if err != nil {
		return t, fmt.Errorf("read dir: %w", err)
	}
	slices.Sort(names)

	for _, n := range names {
		path := filepath.Join(dir, n)
		if n == iconName {
			t.Icon = path
			continue
		}
		if !isImage(n) {
			continue
		}
		if st, err := os.Stat(path); err != nil || !st.Mode().IsRegular() {
			continue
		}
		t.Images = append(t.Images, path)
	}
	return t, nil
}

// FrameSet is a loaded theme: exactly 4 overlays, or none.
type FrameSet struct {
	name     string
	overlays []*image.RGBA
}

// None returns the empty FrameSet, which disables overlay compositing.
func None() *FrameSet {
	return &FrameSet{}
}

// Load decodes the first 4 images of the named theme under root.
func Load(root, name string) (*FrameSet, error) {
	if name == "" || hidden(name) || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrNoTheme, name)
	}
	dir := filepath.Join(root, name)
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("%w: %q", ErrNoTheme, name)
	}

	t, err := readTheme(dir)
	if err != nil {
		return nil, err
	}
	if len(t.Images) < Overlays {
		return nil, fmt.Errorf("%w: %s has %d, need %d", ErrTooFewOverlays, name, len(t.Images), Overlays)
	}
	paths := t.Images[:Overlays]

	fs := &FrameSet{name: name, overlays: make([]*image.RGBA, Overlays)}
	var g errgroup.Group
	for i, p := range paths {
		g.Go(func() error {
			img, err := imgio.Open(p)
			if err != nil {
				return fmt.Errorf("open %s: %w", p, err)
			}
			fs.overlays[i] = clone.AsRGBA(img)
			klog.V(1).Infof("loaded overlay %d: %s (%v)", i, p, img.Bounds().Size())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	klog.Infof("loaded theme %q", name)
	return fs, nil
}

// Name is the theme name, empty for None.
func (f *FrameSet) Name() string {
	return f.name
}

// Len is the number of overlays: 4, or 0 for None.
func (f *FrameSet) Len() int {
	return len(f.overlays)
}

// Active reports whether overlays should be composited.
func (f *FrameSet) Active() bool {
	return len(f.overlays) > 0
}

// Overlay returns overlay i, or nil when out of range.
func (f *FrameSet) Overlay(i int) image.Image {
	if i < 0 || i >= len(f.overlays) {
		return nil
	}
	return f.overlays[i]
}
