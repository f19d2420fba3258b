package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bft-labs/serialship/internal/ports"
)

// FileSpec is one local file to push and the name it gets on the peer.
type FileSpec struct {
	LocalPath  string
	RemoteName string

	// Critical aborts the session when this file fails.
	Critical bool
}

// BundleSuffix is one member of a model bundle.
type BundleSuffix struct {
	Suffix string `toml:"suffix"`

	// Required fails resolution when no matching file exists.
	Required bool `toml:"required"`

	Critical bool `toml:"critical"`
}

// BundleConfig configures model name expansion.
type BundleConfig struct {
	SearchDirs []string       `toml:"search_dirs"`
	Suffixes   []BundleSuffix `toml:"suffixes"`

	// SessionSuffix is appended to the model name to form the session name.
	SessionSuffix string `toml:"session_suffix"`
}

// DefaultBundleConfig returns the dataset, HOG config and model members
// searched in the current directory.
func DefaultBundleConfig() BundleConfig {
	return BundleConfig{
		SearchDirs: []string{"."},
		Suffixes: []BundleSuffix{
			{Suffix: "_qtz.bin"},
			{Suffix: "_dp.csv"},
			{Suffix: "_nml.bin"},
			{Suffix: "_hogcfg.json"},
			{Suffix: "_config.json", Required: true},
			{Suffix: "_forest.bin", Required: true, Critical: true},
			{Suffix: "_npd.bin"},
			{Suffix: "_nlg.csv"},
		},
		SessionSuffix: "_unified",
	}
}

// Bundle is a resolved push: the session name and its files in order.
type Bundle struct {
	Session string
	Files   []FileSpec
}

// BundleResolver expands a send target into files.
type BundleResolver struct {
	cfg    BundleConfig
	logger ports.Logger
}

// NewBundleResolver creates a resolver.
func NewBundleResolver(cfg BundleConfig, logger ports.Logger) *BundleResolver {
	return &BundleResolver{cfg: cfg, logger: logger}
}

// Resolve expands target. An existing file is sent alone; an existing
// directory is sent recursively with slash-separated relative names;
// anything else is treated as a model name. output, when set, overrides
// the session name (and the remote name of a single file).
func (r *BundleResolver) Resolve(target, output string) (Bundle, error) {
	info, err := os.Stat(target)
	switch {
	case err == nil && info.Mode().IsRegular():
		name := filepath.Base(target)
		if output != "" {
			name = output
		}
		return Bundle{
			Session: name,
			Files:   []FileSpec{{LocalPath: target, RemoteName: name, Critical: true}},
		}, nil

	case err == nil && info.IsDir():
		return r.resolveDir(target, output)

	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return Bundle{}, err
	}
	return r.resolveModel(target, output)
}

func (r *BundleResolver) resolveDir(dir, output string) (Bundle, error) {
	var files []FileSpec
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, FileSpec{LocalPath: path, RemoteName: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return Bundle{}, fmt.Errorf("walk %s: %w", dir, err)
	}
	if len(files) == 0 {
		return Bundle{}, fmt.Errorf("directory %s contains no files", dir)
	}
	name := filepath.Base(filepath.Clean(dir))
	if output != "" {
		name = output
	}
	return Bundle{Session: name, Files: files}, nil
}

func (r *BundleResolver) resolveModel(model, output string) (Bundle, error) {
	if strings.ContainsAny(model, `/\`) {
		return Bundle{}, fmt.Errorf("%s: %w", model, fs.ErrNotExist)
	}

	var files []FileSpec
	var missing []string
	for _, s := range r.cfg.Suffixes {
		name := model + s.Suffix
		path, ok := r.find(name)
		if !ok {
			if s.Required {
				missing = append(missing, name)
			} else {
				r.logger.Debug("optional bundle file not found", ports.String("file", name))
			}
			continue
		}
		files = append(files, FileSpec{LocalPath: path, RemoteName: name, Critical: s.Critical})
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Bundle{}, fmt.Errorf("model %q: missing required files %s", model, strings.Join(missing, ", "))
	}
	if len(files) == 0 {
		return Bundle{}, fmt.Errorf("model %q: no files found in %s", model, strings.Join(r.cfg.SearchDirs, ", "))
	}

	session := model + r.cfg.SessionSuffix
	if output != "" {
		session = output
	}
	return Bundle{Session: session, Files: files}, nil
}

func (r *BundleResolver) find(name string) (string, bool) {
	for _, dir := range r.cfg.SearchDirs {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, true
		}
	}
	return "", false
}
