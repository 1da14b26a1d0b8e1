// Package configutil reads json5 configuration files with local overrides.
package configutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// LocalName returns the override file of name: "config.json5" becomes
// "config.local.json5".
func LocalName(name string) string {
	dir, base := filepath.Split(name)
	ext := filepath.Ext(base)
	return filepath.Join(dir, strings.TrimSuffix(base, ext)+".local"+ext)
}

func readFile[T any](name string) (T, bool, error) {
	var out T
	data, err := os.ReadFile(name)
	if os.IsNotExist(err) {
		return out, false, nil
	}
	if err != nil {
		return out, false, err
	}
	err = json5.Unmarshal(data, &out)
	if err != nil {
		return out, false, fmt.Errorf("parse %s: %w", name, err)
	}
	return out, true, nil
}

// ReadConfig reads name and merges <name>.local.<ext> over it, fields set in
// the local file take precedence. It returns os.ErrNotExist when neither file
// exists.
func ReadConfig[T any](name string) (T, error) {
	out, found, err := readFile[T](name)
	if err != nil {
		return out, err
	}

	localName := LocalName(name)
	override, foundLocal, err := readFile[T](localName)
	if err != nil {
		return out, err
	}
	if foundLocal {
		err = mergo.Merge(&out, override, mergo.WithOverride)
		if err != nil {
			return out, err
		}
		slog.Info("merging config with local overrides", "local", localName)
	}

	if !found && !foundLocal {
		return out, os.ErrNotExist
	}
	return out, nil
}
