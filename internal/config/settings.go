package config

import (
	"fmt"
	"path"

	"gopkg.in/yaml.v3"

	"github.com/keshon/sbvc/internal/fs"
)

// Settings are per-project preferences kept next to the history. They never
// hold credentials.
type Settings struct {
	Remote string `yaml:"remote,omitempty"`
	Author string `yaml:"author,omitempty"`
	Email  string `yaml:"email,omitempty"`
}

// LoadSettings reads <dir>/settings.yaml. A missing file yields zero settings.
func LoadSettings(fsys fs.FS, dir string) (Settings, error) {
	var s Settings
	data, err := fsys.ReadFile(path.Join(dir, SettingsFile))
	if err != nil {
		if fsys.IsNotExist(err) {
			return s, nil
		}
		return s, err
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse %s: %w", SettingsFile, err)
	}
	return s, nil
}

// SaveSettings writes settings atomically.
func SaveSettings(fsys fs.FS, dir string, s Settings) error {
	data, err := yaml.Marshal(&s)
	if err != nil {
		return err
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	w, tmp, err := fsys.CreateTempFile(dir, "settings-*")
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		fsys.Remove(tmp)
		return err
	}
	if err := w.Close(); err != nil {
		fsys.Remove(tmp)
		return err
	}
	return fsys.Rename(tmp, path.Join(dir, SettingsFile))
}
