package frameset

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/fsnotify/fsnotify"
	"k8s.io/klog/v2"
)

// Watch rescans root whenever it or one of its themes changes, and passes the new catalog to fn.
// It blocks until ctx is done.
func Watch(ctx context.Context, root string, fn func(*Catalog)) error {
	c, err := Scan(root)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	defer w.Close()

	watched := map[string]bool{}
	track := func(c *Catalog) {
		dirs := []string{root}
		for _, t := range c.Themes {
			dirs = append(dirs, t.Dir)
		}
		slices.Sort(dirs)
		for _, d := range dirs {
			if watched[d] {
				continue
			}
			if err := w.Add(d); err != nil {
				klog.Warningf("watch %s: %v", d, err)
				continue
			}
			watched[d] = true
		}
	}
	track(c)
	klog.Infof("watching %d theme dirs under %s ...", len(watched), root)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			klog.V(1).Infof("theme event: %s", event)
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				delete(watched, filepath.Clean(event.Name))
			}
			c, err := Scan(root)
			if err != nil {
				klog.Errorf("rescan %s: %v", root, err)
				continue
			}
			track(c)
			fn(c)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			klog.Warningf("watch error: %v", err)
		}
	}
}
