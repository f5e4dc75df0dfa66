package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// File is a translation project: the game's extracted entries plus the
// language pair. It is the unit of persistence — the engine's checkpoint
// callback saves it every few completed translations.
type File struct {
	// Game is a human-readable game title.
	Game string `json:"game,omitempty"`
	// SourceLang is the source language code (default "ja").
	SourceLang string `json:"source_lang,omitempty"`
	// TargetLang is the target language code (default "en").
	TargetLang string `json:"target_lang,omitempty"`
	// Entries in original game order. Order is load-bearing: adjacent
	// entries share narrative context, and chunk partitioning relies on it.
	Entries []*Entry `json:"entries"`
}

// Stats summarizes per-status entry counts.
type Stats struct {
	Total        int
	Untranslated int
	Translated   int
	Reviewed     int
	Skipped      int
}

// Load reads a project file from disk.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading project file: %w", err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing project file %s: %w", path, err)
	}

	for i, e := range f.Entries {
		if e.ID == "" {
			return nil, fmt.Errorf("project file %s: entry %d has no id", path, i)
		}
		if e.Status == "" {
			e.Status = StatusUntranslated
		}
	}
	return &f, nil
}

// Save writes the project file atomically (temp file + rename) so a
// checkpoint during a crash never leaves a truncated project behind.
func (f *File) Save(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling project: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".rpgtrans-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing project: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing project file: %w", err)
	}
	return nil
}

// EntryByID returns the entry with the given ID, or nil.
func (f *File) EntryByID(id string) *Entry {
	for _, e := range f.Entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// Stats counts entries by status.
func (f *File) Stats() Stats {
	s := Stats{Total: len(f.Entries)}
	for _, e := range f.Entries {
		switch e.Status {
		case StatusTranslated:
			s.Translated++
		case StatusReviewed:
			s.Reviewed++
		case StatusSkipped:
			s.Skipped++
		default:
			s.Untranslated++
		}
	}
	return s
}
