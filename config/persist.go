package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Persist serializes every known environment's snapshot to a JSON file whose
// shape matches the configuration-file format, so the output round-trips
// through New(WithFile(path)). Keys are sorted and the output indented to
// keep the file human-diffable. The write is atomic: a temp file in the
// target directory is renamed over the destination.
func (r *Resolver) Persist(path string) error {
	all := make(map[string]map[string]any, len(Environments()))
	for _, env := range Environments() {
		snap, err := r.Snapshot(env)
		if err != nil {
			return err
		}
		fields, err := snap.toMap()
		if err != nil {
			return err
		}
		all[env] = fields
	}

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}
	data = append(data, '\n')

	return atomicWriteFile(path, data)
}

// atomicWriteFile writes data through a temp file and rename so readers
// never observe a partially-written file.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory '%s': %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	tempPath := tempFile.Name()
	renamed := false
	defer func() {
		if !renamed {
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := os.Chmod(tempPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	renamed = true

	return nil
}
