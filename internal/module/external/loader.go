package external

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nerrad567/keygrid-core/internal/module"
)

// LoadResult records what happened to one plugin directory.
type LoadResult struct {
	Dir    string
	Plugin *Plugin
	Err    error
}

// Discover reads the manifest of every subdirectory of dir, in name order.
// Directories without a manifest are skipped. A missing dir yields no
// results.
func Discover(dir string, opts Options) ([]LoadResult, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading plugins directory: %w", err)
	}

	var out []LoadResult
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pluginDir := filepath.Join(dir, e.Name())
		if _, err := os.Stat(filepath.Join(pluginDir, ManifestFile)); err != nil {
			continue
		}
		m, err := ReadManifest(pluginDir)
		if err != nil {
			out = append(out, LoadResult{Dir: pluginDir, Err: err})
			continue
		}
		out = append(out, LoadResult{Dir: pluginDir, Plugin: New(m, opts)})
	}
	return out, nil
}

// LoadAll discovers plugins under dir, registers each with mgr and starts
// it. A plugin that fails any step is reported and skipped; the others
// still load. The returned plugins are running and registered.
func LoadAll(ctx context.Context, dir string, mgr *module.Manager, opts Options) ([]*Plugin, []LoadResult, error) {
	results, err := Discover(dir, opts)
	if err != nil {
		return nil, nil, err
	}

	var loaded []*Plugin
	for i := range results {
		r := &results[i]
		if r.Err != nil {
			continue
		}
		if err := mgr.Register(r.Plugin.Module()); err != nil {
			r.Err = err
			continue
		}
		if err := r.Plugin.Start(ctx); err != nil {
			_ = mgr.Unregister(r.Plugin.Name()) //nolint:errcheck // registered just above
			r.Err = err
			continue
		}
		loaded = append(loaded, r.Plugin)
	}
	return loaded, results, nil
}
