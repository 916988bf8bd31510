package capture

import (
	"errors"
	"image"
	"sync"
)

// ErrGalleryFull is returned when a shot is added past the gallery's capacity.
var ErrGalleryFull = errors.New("gallery is full")

// Shot is one composited still.
type Shot struct {
	// Index is the position in the session, 0-based.
	Index int
	// Overlay is the frame overlay baked into the shot, or -1 when no theme was active.
	Overlay int
	Image   *image.RGBA
}

// Gallery is the append-only list of shots taken in a session.
type Gallery struct {
	mu       sync.RWMutex
	shots    []Shot
	capacity int
}

// NewGallery returns an empty gallery that holds up to capacity shots.
func NewGallery(capacity int) *Gallery {
	return &Gallery{capacity: capacity, shots: make([]Shot, 0, capacity)}
}

// Add appends a shot. Its Index is set to its position.
func (g *Gallery) Add(s Shot) (Shot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.shots) >= g.capacity {
		return Shot{}, ErrGalleryFull
	}
	s.Index = len(g.shots)
	g.shots = append(g.shots, s)
	return s, nil
}

func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.shots)
}

func (g *Gallery) Cap() int {
	return g.capacity
}

// Full reports whether the gallery holds capacity shots.
func (g *Gallery) Full() bool {
	return g.Len() >= g.capacity
}

// Shot returns the shot at index i.
func (g *Gallery) Shot(i int) (Shot, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if i < 0 || i >= len(g.shots) {
		return Shot{}, false
	}
	return g.shots[i], true
}

// Images returns the shot images in capture order.
func (g *Gallery) Images() []image.Image {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]image.Image, len(g.shots))
	for i, s := range g.shots {
		out[i] = s.Image
	}
	return out
}

// Release drops every shot. The gallery can be reused afterwards.
func (g *Gallery) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.shots {
		g.shots[i] = Shot{}
	}
	g.shots = g.shots[:0]
}
