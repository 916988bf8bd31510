// Package selection tracks which shots go into a strip, and on what background.
package selection

import (
	"errors"
	"fmt"
	"image/color"
	"slices"
	"strings"
	"sync"

	"k8s.io/klog/v2"
)

// Max is the number of shots in a strip.
const Max = 4

// ErrUnknownColor is returned for a color name outside the palette.
var ErrUnknownColor = errors.New("unknown color")

// Color is a named strip background.
type Color struct {
	Name string
	RGBA color.RGBA
}

// Palette lists the available background colors.
var Palette = []Color{
	{"Black", color.RGBA{0x00, 0x00, 0x00, 0xff}},
	{"White", color.RGBA{0xff, 0xff, 0xff, 0xff}},
	{"Red", color.RGBA{0xff, 0x00, 0x00, 0xff}},
	{"Green", color.RGBA{0x00, 0xff, 0x00, 0xff}},
	{"Blue", color.RGBA{0x00, 0x00, 0xff, 0xff}},
	{"Yellow", color.RGBA{0xff, 0xff, 0x00, 0xff}},
	{"Magenta", color.RGBA{0xff, 0x00, 0xff, 0xff}},
	{"Cyan", color.RGBA{0x00, 0xff, 0xff, 0xff}},
}

// ParseColor looks up a palette color by name, ignoring case.
func ParseColor(name string) (Color, error) {
	for _, c := range Palette {
		if strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			return c, nil
		}
	}
	return Color{}, fmt.Errorf("%w: %q", ErrUnknownColor, name)
}

// Selection is an ordered, duplicate-free pick of up to 4 shots out of a gallery.
type Selection struct {
	mu      sync.Mutex
	shots   int
	indices []int
	color   Color

	// OnChange is called after every mutation, without the lock held.
	OnChange func()
}

// New returns an empty selection over a gallery of the given size, on a black background.
func New(shots int) *Selection {
	return &Selection{shots: shots, color: Palette[0]}
}

// Toggle removes i when selected, otherwise appends it if fewer than 4 are selected.
// Indices outside the gallery are ignored.
func (s *Selection) Toggle(i int) {
	s.mu.Lock()
	if i < 0 || i >= s.shots {
		s.mu.Unlock()
		klog.V(1).Infof("ignoring selection of shot %d", i)
		return
	}

	changed := true
	if at := slices.Index(s.indices, i); at >= 0 {
		s.indices = slices.Delete(s.indices, at, at+1)
	} else if len(s.indices) < Max {
		s.indices = append(s.indices, i)
	} else {
		changed = false
	}
	s.mu.Unlock()

	if changed {
		s.changed()
	}
}

// SetColor sets the background by name.
func (s *Selection) SetColor(name string) error {
	c, err := ParseColor(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.color = c
	s.mu.Unlock()
	s.changed()
	return nil
}

// Indices returns a copy of the selected shot indices in selection order.
func (s *Selection) Indices() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.indices)
}

func (s *Selection) Color() Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.color
}

func (s *Selection) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.indices)
}

// Full reports whether exactly 4 shots are selected.
func (s *Selection) Full() bool {
	return s.Len() == Max
}

// Reset clears the picks and restores the black background.
func (s *Selection) Reset() {
	s.mu.Lock()
	s.indices = nil
	s.color = Palette[0]
	s.mu.Unlock()
	s.changed()
}

func (s *Selection) changed() {
	if s.OnChange != nil {
		s.OnChange()
	}
}
