// Package compose turns camera frames and overlays into shots, and shots into printable strips.
package compose

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"k8s.io/klog/v2"
)

// ErrSelectionSize is returned when a strip is requested without exactly 4 selected shots.
var ErrSelectionSize = errors.New("exactly 4 photos must be selected")

var (
	// DefaultLabel is the watermark printed under the photos.
	DefaultLabel = "LEAN4CUT"
	// DefaultFontPath is the display typeface used for the watermark, when present.
	DefaultFontPath = "Anton-Regular.ttf"
	// DefaultFontSize is the watermark size in points.
	DefaultFontSize = 72.0
	// PreviewBox bounds the on-screen preview of a strip.
	PreviewBox = image.Pt(300, 450)
)

// StripSpec is the pixel layout of a strip.
type StripSpec struct {
	Width  int
	Height int
	Top    int
	Side   int
	Bottom int
	Gap    int
	Panels int
}

// DefaultStripSpec is a 2x6 inch strip at 300 DPI with 4 panels.
func DefaultStripSpec() StripSpec {
	return StripSpec{
		Width:  2 * 300,
		Height: 6 * 300,
		Top:    30,
		Side:   30,
		Bottom: 150,
		Gap:    30,
		Panels: 4,
	}
}

// PanelWidth is the width available to each photo.
func (s StripSpec) PanelWidth() int {
	return s.Width - 2*s.Side
}

// PanelHeight is the height available to each photo.
func (s StripSpec) PanelHeight() int {
	return (s.Height - s.Top - s.Bottom - (s.Panels-1)*s.Gap) / s.Panels
}

// Panel returns the rectangle of panel i.
func (s StripSpec) Panel(i int) image.Rectangle {
	y := s.Top + i*(s.PanelHeight()+s.Gap)
	return image.Rect(s.Side, y, s.Side+s.PanelWidth(), y+s.PanelHeight())
}

// Baseline is the y coordinate of the watermark baseline.
func (s StripSpec) Baseline() int {
	return s.Height - s.Bottom/2
}

// Renderer draws strips.
type Renderer struct {
	Spec     StripSpec
	Label    string
	FontPath string
	FontSize float64
	// Outline is the watermark stroke width in pixels.
	Outline int

	mu   sync.Mutex
	face font.Face
}

// NewRenderer returns a Renderer for the default strip layout.
func NewRenderer(label string, fontPath string) *Renderer {
	if label == "" {
		label = DefaultLabel
	}
	return &Renderer{
		Spec:     DefaultStripSpec(),
		Label:    label,
		FontPath: fontPath,
		FontSize: DefaultFontSize,
		Outline:  3,
	}
}

// Render draws the strip for the selected shots, in selection order from the top.
// With preview set, the finished strip is downsampled to fit PreviewBox.
func (r *Renderer) Render(shots []image.Image, sel []int, bg color.Color, preview bool) (*image.RGBA, error) {
	if len(sel) != r.Spec.Panels {
		return nil, fmt.Errorf("%w: have %d", ErrSelectionSize, len(sel))
	}
	return r.render(shots, sel, bg, preview)
}

// Draft draws a preview strip for a partial selection. Unfilled panels show the background.
func (r *Renderer) Draft(shots []image.Image, sel []int, bg color.Color) (*image.RGBA, error) {
	if len(sel) > r.Spec.Panels {
		return nil, fmt.Errorf("%w: have %d", ErrSelectionSize, len(sel))
	}
	return r.render(shots, sel, bg, true)
}

func (r *Renderer) render(shots []image.Image, sel []int, bg color.Color, preview bool) (*image.RGBA, error) {
	for _, idx := range sel {
		if idx < 0 || idx >= len(shots) || shots[idx] == nil {
			return nil, fmt.Errorf("shot %d: not in gallery of %d", idx, len(shots))
		}
	}

	s := r.Spec
	canvas := image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	for i, idx := range sel {
		panel := s.Panel(i)
		pic := Fit(shots[idx], panel.Dx(), panel.Dy())
		pb := pic.Bounds()
		at := image.Pt(
			panel.Min.X+(panel.Dx()-pb.Dx())/2,
			panel.Min.Y+(panel.Dy()-pb.Dy())/2,
		)
		draw.Draw(canvas, pb.Add(at), pic, pb.Min, draw.Over)
	}

	r.watermark(canvas)

	if preview {
		return Fit(canvas, PreviewBox.X, PreviewBox.Y), nil
	}
	return canvas, nil
}

// watermark draws the label centered with its baseline on Spec.Baseline, white with a black outline.
func (r *Renderer) watermark(canvas *image.RGBA) {
	if r.Label == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	dc := gg.NewContextForRGBA(canvas)
	dc.SetFontFace(r.fontFace())

	x := float64(r.Spec.Width) / 2
	y := float64(r.Spec.Baseline())
	o := r.Outline

	dc.SetColor(color.Black)
	for dy := -o; dy <= o; dy++ {
		for dx := -o; dx <= o; dx++ {
			if dx*dx+dy*dy > o*o {
				continue
			}
			dc.DrawStringAnchored(r.Label, x+float64(dx), y+float64(dy), 0.5, 0)
		}
	}

	dc.SetColor(color.White)
	dc.DrawStringAnchored(r.Label, x, y, 0.5, 0)
}

// fontFace loads the configured typeface once, falling back to Go Bold. Callers hold r.mu.
func (r *Renderer) fontFace() font.Face {
	if r.face != nil {
		return r.face
	}

	size := r.FontSize
	if size <= 0 {
		size = DefaultFontSize
	}

	if r.FontPath != "" {
		face, err := gg.LoadFontFace(r.FontPath, size)
		if err == nil {
			r.face = face
			return face
		}
		klog.V(1).Infof("font %s unavailable, using built-in face: %v", r.FontPath, err)
	}

	r.face = fallbackFace(size)
	return r.face
}

func fallbackFace(size float64) font.Face {
	f, err := opentype.Parse(gobold.TTF)
	if err != nil {
		klog.Errorf("parse built-in font: %v", err)
		return basicfont.Face7x13
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		klog.Errorf("built-in font face: %v", err)
		return basicfont.Face7x13
	}
	return face
}
