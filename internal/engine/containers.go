package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Aman-CERP/amanfind/internal/config"
	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
	"github.com/Aman-CERP/amanfind/internal/store"
)

// ContainerInfo is one entry of ListContainers.
type ContainerInfo struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	IndexedPaths []string `json:"indexed_paths"`
	Active       bool     `json:"active"`
}

// ListContainers returns configured containers, Default first.
func (e *Engine) ListContainers() []ContainerInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := e.cfg.ContainerNames()
	out := make([]ContainerInfo, 0, len(names))
	for _, name := range names {
		cc := e.cfg.Containers[name]
		out = append(out, ContainerInfo{
			Name:         name,
			Description:  cc.Description,
			IndexedPaths: append([]string{}, cc.IndexedPaths...),
			Active:       name == e.cfg.ActiveContainer,
		})
	}
	return out
}

// CreateContainer adds a container and its empty backing table.
func (e *Engine) CreateContainer(ctx context.Context, name, description string, paths []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.cfg.AddContainer(name, description, paths); err != nil {
		return err
	}
	if err := e.store.CreateContainer(ctx, name); err != nil {
		_ = e.cfg.RemoveContainer(name)
		if errors.Is(err, store.ErrContainerExists) {
			return amerrors.New(amerrors.ErrCodeContainerExists,
				fmt.Sprintf("an index for %q already exists", name), err)
		}
		return err
	}
	if err := e.saveLocked(); err != nil {
		return err
	}
	slog.Info("container_created", slog.String("container", name), slog.Int("paths", len(paths)))
	return nil
}

// RenameContainer renames a container and its backing table. The
// container must not be mid-pass.
func (e *Engine) RenameContainer(ctx context.Context, oldName, newName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := cloneConfig(e.cfg)
	if err := e.cfg.RenameContainer(oldName, newName); err != nil {
		return err
	}

	lock, err := e.store.LockWriter(oldName)
	if err != nil {
		*e.cfg = *prev
		return err
	}
	defer func() { _ = lock.Unlock() }()

	err = e.store.RenameContainer(ctx, oldName, newName)
	if err != nil && !errors.Is(err, store.ErrContainerNotFound) {
		*e.cfg = *prev
		if errors.Is(err, store.ErrContainerExists) {
			return amerrors.New(amerrors.ErrCodeContainerExists,
				fmt.Sprintf("an index for %q already exists", newName), err)
		}
		return err
	}
	e.forgetLocked(oldName)
	return e.saveLocked()
}

// DeleteContainer removes a container and drops its backing table. The
// Default container cannot be deleted.
func (e *Engine) DeleteContainer(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := cloneConfig(e.cfg)
	if err := e.cfg.RemoveContainer(name); err != nil {
		return err
	}

	lock, err := e.store.LockWriter(name)
	if err != nil {
		*e.cfg = *prev
		return err
	}
	defer func() { _ = lock.Unlock() }()

	if err := e.store.DropContainer(ctx, name); err != nil {
		*e.cfg = *prev
		return err
	}
	e.forgetLocked(name)
	return e.saveLocked()
}

// SetActiveContainer selects the container used when none is named.
func (e *Engine) SetActiveContainer(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.cfg.SetActive(name); err != nil {
		return err
	}
	return e.saveLocked()
}

// AddPath adds an indexed root. It is picked up by the next pass, and
// watched right away when Watch is running.
func (e *Engine) AddPath(name, path string) error {
	e.mu.Lock()
	if err := e.cfg.AddPaths(name, []string{path}); err != nil {
		e.mu.Unlock()
		return err
	}
	e.syncRootsLocked(name)
	err := e.saveLocked()
	ws := e.watching
	e.mu.Unlock()
	if err != nil {
		return err
	}

	if ws != nil {
		abs, aerr := filepath.Abs(path)
		if aerr == nil {
			aerr = ws.w.AddRoot(abs)
		}
		if aerr != nil {
			slog.Warn("watch_add_root_failed", slog.String("path", path), slog.String("error", aerr.Error()))
		}
	}
	return nil
}

// RemovePath drops an indexed root. Its files leave the index on the next
// full pass.
func (e *Engine) RemovePath(name, path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.cfg.RemovePaths(name, []string{path}); err != nil {
		return err
	}
	e.syncRootsLocked(name)
	return e.saveLocked()
}

func (e *Engine) syncRootsLocked(name string) {
	if o, ok := e.orchs[name]; ok {
		o.SetRoots(e.cfg.Containers[name].IndexedPaths)
	}
}

// forgetLocked drops the orchestrator of a container that no longer exists
// under that name, stopping its watch loop.
func (e *Engine) forgetLocked(name string) {
	if e.watching != nil {
		e.watching.stop(name)
	}
	delete(e.orchs, name)
}

func (e *Engine) saveLocked() error {
	if e.cfgPath == "" {
		return nil
	}
	if err := e.cfg.Save(e.cfgPath); err != nil {
		return amerrors.New(amerrors.ErrCodeConfigWrite, "failed to save configuration", err)
	}
	return nil
}

func cloneConfig(c *config.Config) *config.Config {
	cp := *c
	cp.Containers = make(map[string]config.ContainerConfig, len(c.Containers))
	for k, v := range c.Containers {
		v.IndexedPaths = append([]string(nil), v.IndexedPaths...)
		cp.Containers[k] = v
	}
	return &cp
}
