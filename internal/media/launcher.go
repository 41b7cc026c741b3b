// Package media opens listing images in an external viewer.
package media

import (
	"fmt"
	"net/url"
	"os/exec"
	"path"
	"runtime"
	"strings"

	"github.com/samber/lo"

	"github.com/pders01/bazaar/internal/config"
	"github.com/pders01/bazaar/internal/debuglog"
	"github.com/pders01/bazaar/internal/validation"
)

var imageExtensions = []string{"jpg", "jpeg", "png", "gif", "webp", "bmp", "svg", "avif", "heic"}

type Launcher struct {
	imageViewer   string
	defaultOpener string
	registry      *ViewerRegistry
	validator     *validation.URLValidator

	start func(*exec.Cmd) error
}

func NewLauncher(cfg *config.MediaConfig) *Launcher {
	return newLauncher(cfg, runtime.GOOS, exec.LookPath)
}

func newLauncher(cfg *config.MediaConfig, goos string, lookPath func(string) (string, error)) *Launcher {
	registry, err := NewViewerRegistry(goos)
	if err != nil {
		debuglog.Warnf("loading viewer definitions: %v", err)
		registry = &ViewerRegistry{viewers: make(map[string]ViewerDefinition), goos: goos}
	}

	defaultOpener := cfg.DefaultOpener
	if defaultOpener == "" {
		defaultOpener = platformOpener(goos)
	}

	var viewers config.MediaViewers
	switch goos {
	case "darwin":
		viewers = cfg.Darwin
	case "linux":
		viewers = cfg.Linux
	case "windows":
		viewers = cfg.Windows
	default:
		viewers = cfg.Linux
	}

	viewer, found := lo.Find(viewers.Image, func(name string) bool {
		bin := name
		if def, ok := registry.Lookup(name); ok && def.Command != "" {
			bin = def.Command
		}
		_, err := lookPath(bin)
		return err == nil
	})
	if !found {
		viewer = defaultOpener
	}

	return &Launcher{
		imageViewer:   viewer,
		defaultOpener: defaultOpener,
		registry:      registry,
		validator:     validation.NewPermissiveURLValidator(),
		start:         startDetached,
	}
}

// Registry exposes the viewer definitions so user overrides can be merged.
func (l *Launcher) Registry() *ViewerRegistry { return l.registry }

// ImageViewer returns the viewer chosen for images.
func (l *Launcher) ImageViewer() string { return l.imageViewer }

// Open shows rawURL with the image viewer, or the default opener when the
// URL does not look like an image.
func (l *Launcher) Open(rawURL string) error {
	target, err := l.validator.ValidateAndNormalize(rawURL)
	if err != nil {
		return err
	}

	name := l.defaultOpener
	if IsImageURL(target) {
		name = l.imageViewer
	}
	if name == "" {
		return fmt.Errorf("no application found to open %s", target)
	}

	cmd, err := l.registry.Command(name, target)
	if err != nil {
		debuglog.Debugf("falling back to %s: %v", l.defaultOpener, err)
		cmd = exec.Command(l.defaultOpener, target)
		name = l.defaultOpener
	}

	if err := l.start(cmd); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}
	debuglog.WithFields(map[string]interface{}{"viewer": name, "url": target}).Debugf("opened media")
	return nil
}

// IsImageURL reports whether the URL path ends in a known image extension.
func IsImageURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
	return ext != "" && lo.Contains(imageExtensions, ext)
}

func platformOpener(goos string) string {
	switch goos {
	case "darwin":
		return "open"
	case "windows":
		return "start"
	default:
		return "xdg-open"
	}
}

// startDetached starts a GUI program without waiting for it to exit.
func startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		_ = cmd.Wait()
	}()
	return nil
}
