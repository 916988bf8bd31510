// Package autotag suggests keywords for strips with a generative model and writes them into the file.
package autotag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/barasher/go-exiftool"
	"google.golang.org/genai"
	"k8s.io/klog/v2"
)

var (
	// DefaultModel is used when no model is configured.
	DefaultModel = "gemini-2.5-flash"
	// MaxTags caps the number of tags kept from a response.
	MaxTags = 5
)

const prompt = "generate 1-5 comma-separated one-word tags for this photo booth strip. " +
	"Tags should be a present-tense singular word that describes the people, mood, props or setting, " +
	"for example: friends, family, party, wedding, costume, hat, glasses, smile, kiss, birthday, " +
	"halloween, christmas, beach, night. Use bw for black and white photos. Do not combine multiple words. " +
	"Do not use plural words."

// Generator is the part of the genai client used for tagging.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Tagger asks a model for tags.
type Tagger struct {
	gen   Generator
	model string
}

// New returns a Tagger using gen.
func New(gen Generator, model string) *Tagger {
	if model == "" {
		model = DefaultModel
	}
	return &Tagger{gen: gen, model: model}
}

// NewClient returns a Tagger talking to the Gemini API with apiKey.
func NewClient(ctx context.Context, apiKey string, model string) (*Tagger, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return New(client.Models, model), nil
}

// Tags returns up to MaxTags tags for the image at path.
func (t *Tagger) Tags(ctx context.Context, path string) ([]string, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	mt := "image/jpeg"
	if strings.EqualFold(filepath.Ext(path), ".png") {
		mt = "image/png"
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(bs, mt),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}

	klog.V(1).Infof("asking %s for tags of %s (%d bytes)", t.model, path, len(bs))
	resp, err := t.gen.GenerateContent(ctx, t.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("generate: empty response")
	}

	tags := parseTags(resp.Text())
	klog.V(1).Infof("tags for %s: %v", path, tags)
	return tags, nil
}

// parseTags turns a comma separated model answer into clean one-word tags.
func parseTags(s string) []string {
	var tags []string
	seen := map[string]bool{}
	for _, f := range strings.Split(s, ",") {
		tag := strings.ToLower(strings.TrimSpace(f))
		tag = strings.TrimFunc(tag, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		tag = strings.ReplaceAll(tag, " ", "")
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
		if len(tags) == MaxTags {
			break
		}
	}
	return tags
}

// Writer stores tags as image metadata with exiftool.
type Writer struct {
	et *exiftool.Exiftool
}

// NewWriter starts an exiftool process.
func NewWriter() (*Writer, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("exiftool: %w", err)
	}
	return &Writer{et: et}, nil
}

// WriteKeywords replaces the Keywords of the file at path.
func (w *Writer) WriteKeywords(path string, tags []string) error {
	fis := w.et.ExtractMetadata(path)
	if len(fis) == 0 {
		return fmt.Errorf("extract %s: no metadata", path)
	}
	if fis[0].Err != nil {
		return fmt.Errorf("extract %s: %w", path, fis[0].Err)
	}

	fis[0].SetStrings("Keywords", tags)
	w.et.WriteMetadata(fis)
	if fis[0].Err != nil {
		return fmt.Errorf("write metadata %s: %w", path, fis[0].Err)
	}
	klog.Infof("added tags to %s: %v", path, tags)
	return nil
}

// Keywords reads back the Keywords of the file at path.
func (w *Writer) Keywords(path string) ([]string, error) {
	fis := w.et.ExtractMetadata(path)
	if len(fis) == 0 {
		return nil, fmt.Errorf("extract %s: no metadata", path)
	}
	if fis[0].Err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, fis[0].Err)
	}
	kw, err := fis[0].GetStrings("Keywords")
	if err != nil {
		return nil, fmt.Errorf("get keywords: %w", err)
	}
	return kw, nil
}

// Close stops the exiftool process.
func (w *Writer) Close() error {
	return w.et.Close()
}
