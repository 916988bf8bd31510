// stripmake renders a booth strip from 4 existing photos.
package main

import (
	"flag"
	"fmt"
	"image"
	"os"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"github.com/anthonynsimon/bild/imgio"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/tstromberg/stripbooth/pkg/compose"
	"github.com/tstromberg/stripbooth/pkg/deliver"
	"github.com/tstromberg/stripbooth/pkg/selection"
)

var (
	outDir   = flag.String("out", "result", "Location of output directory")
	colorArg = flag.String("color", "Black", "background color")
	label    = flag.String("label", compose.DefaultLabel, "watermark text")
	fontPath = flag.String("font", compose.DefaultFontPath, "watermark TTF font")
	pdf      = flag.Bool("pdf", false, "also write a print PDF")
	preview  = flag.Bool("preview", false, "write the small preview instead of the full strip")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if flag.NArg() != 4 {
		klog.Exitf("usage: %s [flags] <photo1> <photo2> <photo3> <photo4>", os.Args[0])
	}

	col, err := selection.ParseColor(*colorArg)
	if err != nil {
		klog.Exitf("color: %v", err)
	}

	shots := make([]image.Image, flag.NArg())
	var g errgroup.Group
	for i, p := range flag.Args() {
		g.Go(func() error {
			img, err := imgio.Open(p)
			if err != nil {
				return fmt.Errorf("open %s: %w", p, err)
			}
			klog.V(1).Infof("loaded %s: %v", p, img.Bounds())
			shots[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		klog.Exitf("load: %v", err)
	}

	r := compose.NewRenderer(*label, *fontPath)
	strip, err := r.Render(shots, []int{0, 1, 2, 3}, col.RGBA, *preview)
	if err != nil {
		klog.Exitf("render: %v", err)
	}

	path, err := deliver.Save(strip, *outDir, time.Now())
	if err != nil {
		klog.Exitf("save: %v", err)
	}
	fmt.Println(path)

	if *pdf {
		out, err := deliver.PrintPDF(path)
		if err != nil {
			klog.Exitf("pdf: %v", err)
		}
		fmt.Println(out)
	}
}
