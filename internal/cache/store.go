// Package cache persists the last known snapshot, the baseline the next pass
// is compared against.
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"gradewatch/internal/assert"
	"gradewatch/internal/grades"
	"gradewatch/internal/telemetry"

	"golang.org/x/text/encoding/charmap"
)

const (
	report_store_load = "store.load"
	report_store_save = "store.save"
)

type textDecoder struct {
	name   string
	decode func([]byte) ([]byte, bool)
}

// files written by older versions of the bot were not always UTF-8.
var textDecoders = []textDecoder{
	{name: "utf-8", decode: func(b []byte) ([]byte, bool) {
		b = bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
		return b, utf8.Valid(b)
	}},
	// latin-1 maps every byte, bytes 0x80-0x9f become C1 control characters
	// which only show up in cp1252 text.
	{name: "latin-1", decode: func(b []byte) ([]byte, bool) {
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
		return out, err == nil && !hasC1Controls(out)
	}},
	{name: "cp1252", decode: func(b []byte) ([]byte, bool) {
		out, err := charmap.Windows1252.NewDecoder().Bytes(b)
		return out, err == nil
	}},
}

func hasC1Controls(text []byte) bool {
	for _, r := range string(text) {
		if r >= 0x80 && r <= 0x9f {
			return true
		}
	}
	return false
}

// FileStore keeps the snapshot in a single JSON file.
type FileStore struct {
	path string
	tel  telemetry.API
}

func NewFileStore(path string, tel telemetry.API) FileStore {
	assert.NotEmptyStr(path, "path")
	assert.NotNil(tel, "tel")

	return FileStore{
		path: path,
		tel:  telemetry.NewScopedAPI("cache", tel),
	}
}

func (s FileStore) Path() string {
	return s.path
}

// Load returns the persisted snapshot. A missing, unreadable or corrupt file
// yields an empty snapshot, corruption is reported but never returned.
func (s FileStore) Load(ctx context.Context) grades.Snapshot {
	empty := grades.Snapshot{Kind: grades.KindFlat}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.tel.ReportDebug("no cache file, starting from an empty baseline", s.path)
		return empty
	}
	if err != nil {
		s.tel.ReportWarning(report_store_load, fmt.Errorf("read: %w", err), s.path)
		return empty
	}

	var errs []error
	for _, dec := range textDecoders {
		text, ok := dec.decode(data)
		if !ok {
			continue
		}
		snap, err := Decode(text)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", dec.name, err))
			continue
		}
		s.tel.ReportDebug("loaded cache", s.path, dec.name, snap.Kind.String(), snap.Len())
		return snap
	}

	s.tel.ReportWarning(
		report_store_load,
		fmt.Errorf("corrupt cache, using an empty baseline: %w", errors.Join(errs...)),
		s.path,
	)
	return empty
}

// Save replaces the persisted snapshot. The document is written to a temporary
// file in the same directory and renamed over the old one, so readers never see
// a truncated file.
func (s FileStore) Save(ctx context.Context, snap grades.Snapshot) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	err = writeFileAtomic(s.path, Encode(snap))
	if err != nil {
		s.tel.ReportBroken(report_store_save, err, s.path)
		return err
	}
	s.tel.ReportDebug("saved cache", s.path, snap.Kind.String(), snap.Len())
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}
	closeErr := tmp.Close()
	if err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("close temp file: %w", closeErr)
	}

	err = os.Chmod(tmpName, 0644)
	if err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	err = os.Rename(tmpName, path)
	if err != nil {
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}
