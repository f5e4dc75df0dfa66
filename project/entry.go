// Package project implements the translation project model: game text
// entries with their lifecycle status, and the JSON project file that
// persists them between sessions.
package project

import (
	"regexp"
	"strings"
)

// Status is the lifecycle state of a single entry.
type Status string

const (
	// StatusUntranslated: fresh entry, no translation yet.
	StatusUntranslated Status = "untranslated"
	// StatusTranslated: machine translation present, not yet reviewed.
	StatusTranslated Status = "translated"
	// StatusReviewed: translation checked by a human.
	StatusReviewed Status = "reviewed"
	// StatusSkipped: entry excluded from translation (empty source, etc.).
	StatusSkipped Status = "skipped"
)

// Entry is one unit of translatable game text.
//
// Entries are owned by the project's entry list. During a translation run
// each entry belongs to exactly one worker chunk; all mutations are
// applied by the engine's dispatcher goroutine, so no locking is needed
// anywhere in the run path.
type Entry struct {
	// ID uniquely identifies the entry within the game, e.g.
	// "Map001.json/Ev3(EV003)/p0/dialog_5".
	ID string `json:"id"`
	// Original is the source-language text.
	Original string `json:"original"`
	// Context is optional surrounding dialogue or scene information.
	Context string `json:"context,omitempty"`
	// Field tags where the text appears: "dialog", "name", "choice", ...
	Field string `json:"field,omitempty"`
	// Translation is the target-language text. Non-empty whenever the
	// status is translated or reviewed.
	Translation string `json:"translation,omitempty"`
	// Status is the lifecycle state.
	Status Status `json:"status"`
}

// HasTranslation reports whether the entry carries a usable translation
// (translated or reviewed, with non-empty text).
func (e *Entry) HasTranslation() bool {
	if e.Status != StatusTranslated && e.Status != StatusReviewed {
		return false
	}
	return strings.TrimSpace(e.Translation) != ""
}

// SetTranslation stores a translation result. An untranslated entry moves
// to translated; reviewed entries keep their review status so a polish
// pass does not downgrade them.
func (e *Entry) SetTranslation(text string) {
	e.Translation = text
	if e.Status == StatusUntranslated || e.Status == StatusSkipped {
		e.Status = StatusTranslated
	}
}

// ResetForRedo clears the entry back to untranslated so the next run
// picks it up again.
func (e *Entry) ResetForRedo() {
	e.Translation = ""
	e.Status = StatusUntranslated
}

// ControlCodeRE matches RPG Maker control codes that the model must never
// touch. Order matters: longer patterns first to avoid partial matches.
var ControlCodeRE = regexp.MustCompile(
	`\\[A-Za-z]+\[\d*\]` + // \V[1], \N[2], \C[3], \FS[24], ...
		`|\\[{}$.|!><^]` + // \{, \}, \$, \., \|, \!, \>, \<, \^
		`|<[^>]+>` + // HTML-like tags: <br>, <WordWrap>, <B>, ...
		`|%\d+`, // %1, %2 — RPG Maker format specifiers
)

// JapaneseRE matches hiragana, katakana and CJK kanji.
var JapaneseRE = regexp.MustCompile(
	`[\x{3040}-\x{309F}` + // Hiragana
		`\x{30A0}-\x{30FF}` + // Katakana
		`\x{4E00}-\x{9FFF}` + // CJK Unified Ideographs
		`\x{3400}-\x{4DBF}` + // CJK Extension A
		`\x{FF65}-\x{FF9F}]`, // Halfwidth Katakana
)

// EventContext extracts a short event label from an entry ID for display.
//
//	"CommonEvents.json/CE169(リブパイズリ)/dialog_64" → "CE169"
//	"Map001.json/Ev3(EV003)/p0/dialog_5"            → "Ev3/p0"
//	"Map001.json/displayName"                        → ""
func EventContext(entryID string) string {
	parts := strings.Split(entryID, "/")
	if len(parts) < 3 {
		return ""
	}
	middle := parts[1 : len(parts)-1]
	cleaned := make([]string, 0, len(middle))
	for _, part := range middle {
		if paren := strings.Index(part, "("); paren > 0 {
			part = part[:paren]
		}
		cleaned = append(cleaned, part)
	}
	return strings.Join(cleaned, "/")
}

// previewLen is how many runes of text progress events carry.
const previewLen = 50

// Preview flattens newlines and truncates text to a short single-line
// snippet for progress reporting.
func Preview(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) > previewLen {
		return string(runes[:previewLen])
	}
	return s
}
