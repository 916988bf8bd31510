// Package serve exposes saved strips over HTTP so the QR code on screen resolves to a download.
package serve

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"k8s.io/klog/v2"

	"github.com/tstromberg/stripbooth/pkg/deliver"
	"github.com/tstromberg/stripbooth/pkg/ledger"
)

//go:embed index.tmpl
var indexTmpl string

// RecentStrips is how many strips the index page lists.
var RecentStrips = 48

// Lister lists delivered strips, newest first.
type Lister interface {
	Recent(ctx context.Context, n int) ([]ledger.Entry, error)
}

// Server serves strips from a result directory.
type Server struct {
	dir    string
	title  string
	lister Lister
	tmpl   *template.Template
}

// New returns a Server for dir. lister may be nil, in which case the index page is empty.
func New(dir string, title string, lister Lister) (*Server, error) {
	tmpl, err := template.New("index").Parse(indexTmpl)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return &Server{dir: dir, title: title, lister: lister, tmpl: tmpl}, nil
}

// Handler returns the routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logRequests)

	r.Get("/", s.handleIndex)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	r.Get("/r/{name}", s.handleStrip)
	r.Get("/t/{name}", s.handleThumb)
	return r
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()

	klog.Infof("Listening on %s...", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		klog.V(1).Infof("%s %s -> %d (%s)", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

func (s *Server) stripPath(r *http.Request) (string, bool) {
	name := chi.URLParam(r, "name")
	if !deliver.ValidName(name) {
		return "", false
	}
	return filepath.Join(s.dir, name), true
}

func (s *Server) handleStrip(w http.ResponseWriter, r *http.Request) {
	path, ok := s.stripPath(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

func (s *Server) handleThumb(w http.ResponseWriter, r *http.Request) {
	path, ok := s.stripPath(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	thumb, err := deliver.Thumb(path)
	if err != nil {
		klog.V(1).Infof("thumb %s: %v", path, err)
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, thumb)
}

type indexStrip struct {
	Name    string
	Theme   string
	Tags    string
	Created time.Time
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var strips []indexStrip
	if s.lister != nil {
		es, err := s.lister.Recent(r.Context(), RecentStrips)
		if err != nil {
			klog.Errorf("recent strips: %v", err)
			http.Error(w, "unable to list strips", http.StatusInternalServerError)
			return
		}
		for _, e := range es {
			name := filepath.Base(e.Path)
			if !deliver.ValidName(name) {
				continue
			}
			strips = append(strips, indexStrip{Name: name, Theme: e.Theme, Tags: e.Tags, Created: e.Created})
		}
	}

	var bf bytes.Buffer
	data := struct {
		Title  string
		Strips []indexStrip
	}{Title: s.title, Strips: strips}
	if err := s.tmpl.Execute(&bf, data); err != nil {
		klog.Errorf("render index: %v", err)
		http.Error(w, "unable to render", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(bf.Bytes())
}

// URL returns the link encoded in a strip's QR code. Without a base URL it is the local path.
func URL(base string, path string) string {
	if base == "" {
		return path
	}
	return strings.TrimSuffix(base, "/") + "/r/" + url.PathEscape(filepath.Base(path))
}
