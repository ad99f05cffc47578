package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/tray"
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s [flags]\n", os.Args[0])
		pflag.PrintDefaults()
	}

	loggerLevel := logger.LevelInfo
	pflag.Var(&loggerLevel, "log-level", "Log level")
	configPath := pflag.String("config", "", "path to a JSON configuration file")
	listenAddr := pflag.String("listen", "", "HTTP listen address (overrides the configuration)")
	cameraID := pflag.Int("camera", -1, "camera device ID (overrides the configuration)")
	webDir := pflag.String("web-dir", "", "directory with the web UI (default: searched)")
	noTray := pflag.Bool("no-tray", false, "do not show the system tray icon")
	enable := pflag.Bool("enable", false, "start with recognition enabled (default: as last left)")
	pflag.Parse()

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	ctx, cancelFn := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancelFn()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			logger.Fatalf(ctx, "unable to load the configuration: %v", err)
		}
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *cameraID >= 0 {
		cfg.CameraID = *cameraID
	}

	if err := run(ctx, cfg, *webDir, !*noTray, *enable); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal(ctx, err)
	}
}

func run(ctx context.Context, cfg config.Config, webDir string, withTray, enable bool) error {
	ctx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}
	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()

	a, err := app.Build(ctx, cfg, st)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer a.Close(context.WithoutCancel(ctx))

	if err := a.DiscoverPlugins(ctx); err != nil {
		logger.Warnf(ctx, "plugin discovery: %v", err)
	}

	if enable {
		err = a.SetEnabled(ctx, true)
	} else {
		err = a.RestoreEnabled(ctx)
	}
	if err != nil {
		return err
	}

	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		logger.Infof(ctx, "serving static files from %s", webDir)
	}
	srv := server.New(server.Config{
		StaticDir: webDir,
		App:       a,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Run(gctx)
	})
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.ListenAddr)
	})

	if withTray {
		t := tray.New(a)
		t.OnSettings(func() { openBrowser(ctx, settingsURL(cfg.ListenAddr)) })
		t.OnQuit(cancelFn)
		t.Run(gctx)
		cancelFn()
	}

	return g.Wait()
}

func settingsURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(ctx context.Context, url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		logger.Warnf(ctx, "open %s: %v", url, err)
		return
	}
	go cmd.Wait()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.mudra/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if absPath, err := filepath.Abs(p); err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".mudra", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
