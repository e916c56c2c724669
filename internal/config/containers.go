package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
)

// ContainerNames returns configured container names, Default first.
func (c *Config) ContainerNames() []string {
	names := make([]string, 0, len(c.Containers))
	for name := range c.Containers {
		if name != DefaultContainer {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := c.Containers[DefaultContainer]; ok {
		names = append([]string{DefaultContainer}, names...)
	}
	return names
}

// Container returns the named container.
func (c *Config) Container(name string) (ContainerConfig, error) {
	cc, ok := c.Containers[name]
	if !ok {
		return ContainerConfig{}, containerAbsent(name)
	}
	return cc, nil
}

// AddContainer creates a container. Paths are made absolute.
func (c *Config) AddContainer(name, description string, paths []string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return amerrors.ValidationError("container name must not be empty", nil)
	}
	if _, ok := c.Containers[name]; ok {
		return amerrors.New(amerrors.ErrCodeContainerExists, fmt.Sprintf("container %q already exists", name), nil)
	}
	abs, err := absPaths(paths)
	if err != nil {
		return err
	}
	if c.Containers == nil {
		c.Containers = map[string]ContainerConfig{}
	}
	c.Containers[name] = ContainerConfig{Description: description, IndexedPaths: abs}
	return nil
}

// RenameContainer moves a container to a new name. Default cannot be renamed.
func (c *Config) RenameContainer(oldName, newName string) error {
	newName = strings.TrimSpace(newName)
	if oldName == DefaultContainer {
		return amerrors.New(amerrors.ErrCodeContainerLocked, "the Default container cannot be renamed", nil)
	}
	cc, ok := c.Containers[oldName]
	if !ok {
		return containerAbsent(oldName)
	}
	if newName == "" {
		return amerrors.ValidationError("container name must not be empty", nil)
	}
	if _, exists := c.Containers[newName]; exists {
		return amerrors.New(amerrors.ErrCodeContainerExists, fmt.Sprintf("container %q already exists", newName), nil)
	}
	delete(c.Containers, oldName)
	c.Containers[newName] = cc
	if c.ActiveContainer == oldName {
		c.ActiveContainer = newName
	}
	return nil
}

// RemoveContainer deletes a container. Removing the active container
// makes Default active.
func (c *Config) RemoveContainer(name string) error {
	if name == DefaultContainer {
		return amerrors.New(amerrors.ErrCodeContainerLocked, "the Default container cannot be deleted", nil)
	}
	if _, ok := c.Containers[name]; !ok {
		return containerAbsent(name)
	}
	delete(c.Containers, name)
	if c.ActiveContainer == name {
		c.ActiveContainer = DefaultContainer
	}
	return nil
}

// SetActive switches the active container.
func (c *Config) SetActive(name string) error {
	if _, ok := c.Containers[name]; !ok {
		return containerAbsent(name)
	}
	c.ActiveContainer = name
	return nil
}

// AddPaths appends indexed paths to a container, skipping duplicates.
func (c *Config) AddPaths(name string, paths []string) error {
	cc, ok := c.Containers[name]
	if !ok {
		return containerAbsent(name)
	}
	abs, err := absPaths(paths)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(cc.IndexedPaths))
	for _, p := range cc.IndexedPaths {
		seen[p] = true
	}
	for _, p := range abs {
		if !seen[p] {
			cc.IndexedPaths = append(cc.IndexedPaths, p)
			seen[p] = true
		}
	}
	c.Containers[name] = cc
	return nil
}

// RemovePaths drops indexed paths from a container.
func (c *Config) RemovePaths(name string, paths []string) error {
	cc, ok := c.Containers[name]
	if !ok {
		return containerAbsent(name)
	}
	abs, err := absPaths(paths)
	if err != nil {
		return err
	}
	drop := make(map[string]bool, len(abs))
	for _, p := range abs {
		drop[p] = true
	}
	kept := cc.IndexedPaths[:0:0]
	for _, p := range cc.IndexedPaths {
		if !drop[p] {
			kept = append(kept, p)
		}
	}
	cc.IndexedPaths = kept
	c.Containers[name] = cc
	return nil
}

func absPaths(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, amerrors.ValidationError(fmt.Sprintf("invalid path %q", p), err)
		}
		out = append(out, filepath.Clean(abs))
	}
	return out, nil
}

func containerAbsent(name string) error {
	return amerrors.New(amerrors.ErrCodeContainerAbsent, fmt.Sprintf("container %q not found", name), nil).
		WithSuggestion("run 'amanfind containers list' to see configured containers")
}
