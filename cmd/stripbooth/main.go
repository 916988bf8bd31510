// stripbooth runs a photo booth from the terminal: pick a frame, take 8 shots, pick 4, print a strip.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/tstromberg/stripbooth/pkg/autotag"
	"github.com/tstromberg/stripbooth/pkg/booth"
	"github.com/tstromberg/stripbooth/pkg/camera/opencv"
	"github.com/tstromberg/stripbooth/pkg/capture"
	"github.com/tstromberg/stripbooth/pkg/frameset"
	"github.com/tstromberg/stripbooth/pkg/ledger"
	"github.com/tstromberg/stripbooth/pkg/serve"
)

var (
	configPath = flag.String("config", "", "path to a YAML config file")
	themesDir  = flag.String("themes", "", "frame themes directory (overrides config)")
	resultDir  = flag.String("result", "", "strip output directory (overrides config)")
	label      = flag.String("label", "", "watermark text (overrides config)")
	cameraDev  = flag.Int("camera", -1, "camera device number (overrides config)")
	listenAddr = flag.String("listen", "", "host:port to serve strips on (overrides config)")
	baseURL    = flag.String("base-url", "", "public URL of the strip server, encoded in QR codes (overrides config)")
	watchFlag  = flag.Bool("watch", false, "watch the themes directory for changes")
	liveEvery  = flag.Duration("live-every", 500*time.Millisecond, "how often to refresh the live view file")
)

func loadConfig() booth.Config {
	c := booth.DefaultConfig()
	if *configPath != "" {
		var err error
		c, err = booth.LoadConfig(*configPath)
		if err != nil {
			klog.Exitf("config: %v", err)
		}
	}
	if *themesDir != "" {
		c.ThemesDir = *themesDir
	}
	if *resultDir != "" {
		c.ResultDir = *resultDir
	}
	if *label != "" {
		c.Label = *label
	}
	if *cameraDev >= 0 {
		c.Camera = *cameraDev
	}
	if *listenAddr != "" {
		c.Listen = *listenAddr
	}
	if *baseURL != "" {
		c.BaseURL = *baseURL
	}
	return c
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	c := loadConfig()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := booth.Deps{}
	var led *ledger.Ledger
	if c.LedgerPath != "" {
		var err error
		led, err = ledger.Open(c.LedgerPath)
		if err != nil {
			klog.Exitf("ledger: %v", err)
		}
		defer led.Close()
		deps.Ledger = led
	}

	if key := c.Autotag.APIKey(); key != "" {
		t, err := autotag.NewClient(ctx, key, c.Autotag.Model)
		if err != nil {
			klog.Exitf("autotag: %v", err)
		}
		deps.Tagger = t

		w, err := autotag.NewWriter()
		if err != nil {
			klog.Warningf("keywords will not be written: %v", err)
		} else {
			defer func() {
				if err := w.Close(); err != nil {
					klog.Errorf("Failed to close exiftool: %v", err)
				}
			}()
			deps.Keywords = w
		}
	}

	disp, err := newFileDisplay(c.ResultDir, *liveEvery, os.Stdout)
	if err != nil {
		klog.Exitf("display: %v", err)
	}
	previewPath := filepath.Join(c.ResultDir, "preview.png")

	b, err := booth.New(c, deps, booth.Events{
		Countdown: func(n int) { fmt.Printf("  %d ...\n", n) },
		Captured:  func(s capture.Shot) { fmt.Printf("  shot %d taken\n", s.Index) },
		CaptureDone: func(g *capture.Gallery) {
			fmt.Printf("%d shots taken. Pick 4 with 'pick <n>', then 'make'.\n", g.Len())
		},
		CaptureFailed: func(err error) { fmt.Printf("camera failed: %v. Type 'start' to try again.\n", err) },
		Preview: func(img image.Image) {
			if err := saveImage(previewPath, img); err != nil {
				klog.Errorf("preview: %v", err)
			}
		},
		Tagged: func(path string, tags []string) { klog.Infof("%s tagged %v", path, tags) },
	})
	if err != nil {
		klog.Exitf("booth: %v", err)
	}
	defer b.Wait()

	sched := capture.NewLoop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sched.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if c.Listen != "" {
		var lister serve.Lister
		if led != nil {
			lister = led
		}
		srv, err := serve.New(c.ResultDir, c.Label, lister)
		if err != nil {
			klog.Exitf("serve: %v", err)
		}
		g.Go(func() error { return srv.ListenAndServe(gctx, c.Listen) })
	}

	if *watchFlag {
		g.Go(func() error {
			err := frameset.Watch(gctx, c.ThemesDir, b.SetCatalog)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	fmt.Printf("Themes: %s\nType 'help' for commands.\n", strings.Join(b.Themes(), ", "))
	go func() {
		repl(gctx, b, sched, disp, c)
		stop()
	}()

	if err := g.Wait(); err != nil {
		klog.Exitf("stripbooth: %v", err)
	}
}

const help = `commands:
  themes            list frame themes
  theme <name>      choose a theme, or "none"
  start             open the camera and start shooting
  t                 take the next shot now
  pick <n>          add or remove shot n (0-7) from the strip
  color <name>      background: black white red green blue yellow magenta cyan
  make              create the strip
  reset             start over
  quit`

func repl(ctx context.Context, b *booth.Booth, sched capture.Scheduler, disp capture.Display, c booth.Config) {
	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("[%s]> ", b.Stage())
		if !in.Scan() {
			return
		}
		fields := strings.Fields(in.Text())
		if len(fields) == 0 {
			continue
		}
		arg := ""
		if len(fields) > 1 {
			arg = fields[1]
		}

		var err error
		switch fields[0] {
		case "help", "?":
			fmt.Println(help)
		case "themes":
			fmt.Println(strings.Join(b.Themes(), "\n"))
		case "theme":
			if arg == "none" {
				arg = ""
			}
			err = b.ChooseTheme(arg)
		case "start":
			var cam *opencv.Camera
			cam, err = opencv.Open(c.Camera, c.ShotSize.Point())
			if err != nil {
				klog.Errorf("no camera, capture cannot start: %v", err)
				break
			}
			if err = b.StartCapture(sched, cam, disp); err != nil {
				cam.Close()
			}
		case "t", "snap":
			err = b.Trigger()
		case "pick":
			var n int
			n, err = strconv.Atoi(arg)
			if err == nil {
				err = b.Toggle(n)
				fmt.Printf("selected: %v\n", b.Session().Selection.Indices())
			}
		case "color":
			err = b.SetColor(arg)
		case "make":
			var res *booth.Result
			res, err = b.CreateStrip(ctx)
			if err == nil {
				qrPath := filepath.Join(c.ResultDir, "qr.png")
				if qerr := saveImage(qrPath, res.QR); qerr != nil {
					klog.Errorf("qr: %v", qerr)
				}
				fmt.Printf("strip saved: %s\nscan %s for %s\n", res.Path, qrPath, res.URL)
			}
		case "reset":
			b.Reset()
		case "quit", "exit":
			b.Reset()
			return
		default:
			err = fmt.Errorf("unknown command %q", fields[0])
		}
		if err != nil {
			fmt.Printf("error: %v\n", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}
