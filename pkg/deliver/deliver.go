// Package deliver writes finished strips to disk and hands them to guests.
package deliver

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"
	"github.com/otiai10/copy"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/skip2/go-qrcode"
	"k8s.io/klog/v2"
)

var (
	// NameFormat is the time layout of saved strip names.
	NameFormat = "20060102150405"
	// QRSize is the edge length of a rendered QR code in pixels.
	QRSize = 256
	// ThumbHeight is the height of strip thumbnails.
	ThumbHeight = 360

	namePattern = regexp.MustCompile(`^\d{14}\.png$`)
)

// Name returns the file name a strip saved at t gets.
func Name(t time.Time) string {
	return t.Format(NameFormat) + ".png"
}

// ValidName reports whether name looks like a saved strip.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Save writes img as a PNG named after now into dir, creating dir when needed.
// A strip saved within the same second replaces the earlier one.
func Save(img image.Image, dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}
	path := filepath.Join(dir, Name(now))
	if _, err := os.Stat(path); err == nil {
		klog.Warningf("overwriting %s", path)
	}
	if err := imgio.Save(path, img, imgio.PNGEncoder()); err != nil {
		return "", fmt.Errorf("save: %w", err)
	}
	klog.Infof("saved strip to %s", path)
	return path, nil
}

// SaveShots writes every shot of a session as shot-N.png into dir.
func SaveShots(shots []image.Image, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	paths := make([]string, 0, len(shots))
	for i, s := range shots {
		if s == nil {
			continue
		}
		p := filepath.Join(dir, fmt.Sprintf("shot-%d.png", i))
		if err := imgio.Save(p, s, imgio.PNGEncoder()); err != nil {
			return paths, fmt.Errorf("save %s: %w", p, err)
		}
		paths = append(paths, p)
	}
	klog.V(1).Infof("saved %d shots to %s", len(paths), dir)
	return paths, nil
}

// QR renders content as a square QR code of size pixels with medium error recovery.
func QR(content string, size int) (image.Image, error) {
	if size <= 0 {
		size = QRSize
	}
	q, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("qrcode: %w", err)
	}
	return q.Image(size), nil
}

// Archive copies a saved strip into archiveDir/sessionID/ and returns the new path.
func Archive(path, archiveDir, sessionID string) (string, error) {
	dest := filepath.Join(archiveDir, sessionID, filepath.Base(path))
	if err := copy.Copy(path, dest); err != nil {
		return "", fmt.Errorf("copy: %w", err)
	}
	klog.V(1).Infof("archived %s to %s", path, dest)
	return dest, nil
}

// PrintPDF wraps a saved strip into a single page PDF next to it.
func PrintPDF(pngPath string) (string, error) {
	out := strings.TrimSuffix(pngPath, filepath.Ext(pngPath)) + ".pdf"
	if err := api.ImportImagesFile([]string{pngPath}, out, nil, nil); err != nil {
		return "", fmt.Errorf("import images: %w", err)
	}
	klog.V(1).Infof("wrote print PDF %s", out)
	return out, nil
}

// ThumbPath is where the thumbnail of a saved strip lives: a "_" directory beside it.
func ThumbPath(pngPath string) string {
	base := strings.TrimSuffix(filepath.Base(pngPath), filepath.Ext(pngPath))
	return filepath.Join(filepath.Dir(pngPath), "_", fmt.Sprintf("%s@y%d.jpg", base, ThumbHeight))
}

// Thumb writes a JPEG thumbnail of a saved strip, skipping the work when an up to date one exists.
func Thumb(pngPath string) (string, error) {
	path := ThumbPath(pngPath)

	sst, err := os.Stat(pngPath)
	if err != nil {
		return "", fmt.Errorf("stat: %w", err)
	}
	if dst, err := os.Stat(path); err == nil && dst.Size() > 128 && !sst.ModTime().After(dst.ModTime()) {
		klog.V(1).Infof("%s exists (%d bytes)", path, dst.Size())
		return path, nil
	}

	img, err := imgio.Open(pngPath)
	if err != nil {
		return "", fmt.Errorf("imgio.Open: %w", err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return "", fmt.Errorf("empty image %s", pngPath)
	}

	y := ThumbHeight
	x := b.Dx() * y / b.Dy()
	if x < 1 {
		x = 1
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}
	rimg := transform.Resize(img, x, y, transform.Lanczos)
	if err := imgio.Save(path, rimg, imgio.JPEGEncoder(85)); err != nil {
		return "", fmt.Errorf("save: %w", err)
	}
	klog.V(1).Infof("created %dx%d thumb: %s", x, y, path)
	return path, nil
}
