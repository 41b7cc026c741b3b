package media

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"

	"github.com/pelletier/go-toml/v2"
)

//go:embed viewers.toml
var viewersTOML []byte

// ViewerDefinition describes how an image viewer is invoked.
type ViewerDefinition struct {
	Description string   `toml:"description"`
	Platforms   []string `toml:"platforms"`
	// Command is the executable when it differs from the viewer name.
	Command     string   `toml:"command,omitempty"`
	Args        []string `toml:"args,omitempty"`
	ArgsDarwin  []string `toml:"args_darwin,omitempty"`
	ArgsLinux   []string `toml:"args_linux,omitempty"`
	ArgsWindows []string `toml:"args_windows,omitempty"`
}

type ViewersConfig struct {
	Viewers map[string]ViewerDefinition `toml:"viewers"`
}

// ViewerRegistry maps viewer names to their invocation.
type ViewerRegistry struct {
	viewers map[string]ViewerDefinition
	goos    string
}

// NewViewerRegistry creates a registry from the embedded definitions.
func NewViewerRegistry(goos string) (*ViewerRegistry, error) {
	r := &ViewerRegistry{viewers: make(map[string]ViewerDefinition), goos: goos}
	if err := r.Merge(viewersTOML); err != nil {
		return nil, fmt.Errorf("parsing viewers.toml: %w", err)
	}
	return r, nil
}

// Merge adds definitions from TOML data, replacing any with the same name.
func (r *ViewerRegistry) Merge(data []byte) error {
	var cfg ViewersConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return err
	}
	for name, def := range cfg.Viewers {
		r.viewers[name] = def
	}
	return nil
}

// LoadFile merges a user definitions file. A missing file is not an error.
func (r *ViewerRegistry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := r.Merge(data); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (r *ViewerRegistry) Lookup(name string) (ViewerDefinition, bool) {
	def, ok := r.viewers[name]
	return def, ok
}

// Command builds the command that shows url with the named viewer. Unknown
// viewers are run as `name url`.
func (r *ViewerRegistry) Command(name, url string) (*exec.Cmd, error) {
	def, ok := r.viewers[name]
	if !ok {
		return exec.Command(name, url), nil
	}
	if !slices.Contains(def.Platforms, r.goos) {
		return nil, fmt.Errorf("%s not supported on %s", name, r.goos)
	}

	bin := name
	if def.Command != "" {
		bin = def.Command
	}
	args := append(slices.Clone(r.args(def)), url)
	return exec.Command(bin, args...), nil
}

// args returns the platform-specific args, falling back to the generic ones.
func (r *ViewerRegistry) args(def ViewerDefinition) []string {
	var platform []string
	switch r.goos {
	case "darwin":
		platform = def.ArgsDarwin
	case "linux":
		platform = def.ArgsLinux
	case "windows":
		platform = def.ArgsWindows
	}
	if len(platform) > 0 {
		return platform
	}
	return def.Args
}
