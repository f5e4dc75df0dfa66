package project

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryLifecycle(t *testing.T) {
	e := &Entry{ID: "a", Original: "text", Status: StatusUntranslated}
	assert.False(t, e.HasTranslation())

	e.SetTranslation("Hello")
	assert.Equal(t, StatusTranslated, e.Status)
	assert.True(t, e.HasTranslation())

	// A polish pass over a reviewed entry keeps the review status.
	e.Status = StatusReviewed
	e.SetTranslation("Hello there")
	assert.Equal(t, StatusReviewed, e.Status)

	e.ResetForRedo()
	assert.Equal(t, StatusUntranslated, e.Status)
	assert.Empty(t, e.Translation)

	// Skipped entries get promoted when a translation lands anyway.
	e.Status = StatusSkipped
	e.SetTranslation("Hi")
	assert.Equal(t, StatusTranslated, e.Status)
}

func TestHasTranslationWhitespace(t *testing.T) {
	e := &Entry{Status: StatusTranslated, Translation: "   \n "}
	assert.False(t, e.HasTranslation())

	e.Status = StatusUntranslated
	e.Translation = "Hello"
	assert.False(t, e.HasTranslation(), "status gates the translation")
}

func TestLoadSaveRoundTrip(t *testing.T) {
	f := &File{
		Game:       "Test Quest",
		SourceLang: "ja",
		TargetLang: "en",
		Entries: []*Entry{
			{ID: "Map001.json/Ev3(EV003)/p0/dialog_5", Original: "こんにちは", Status: StatusUntranslated},
			{ID: "Items.json/12/name", Original: "ポーション", Field: "name",
				Translation: "Potion", Status: StatusTranslated},
		},
	}

	path := filepath.Join(t.TempDir(), "project.json")
	require.NoError(t, f.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, f.Game, loaded.Game)
	require.Len(t, loaded.Entries, 2)
	assert.Equal(t, f.Entries[0].ID, loaded.Entries[0].ID)
	assert.Equal(t, "Potion", loaded.Entries[1].Translation)
}

func TestLoadDefaultsEmptyStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.json")
	data := `{"entries": [{"id": "a", "original": "text"}]}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StatusUntranslated, f.Entries[0].Status)
}

func TestLoadRejectsMissingID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.json")
	data := `{"entries": [{"original": "text"}]}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no id")
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	f := &File{Entries: []*Entry{{ID: "a", Original: "x", Status: StatusUntranslated}}}
	require.NoError(t, f.Save(filepath.Join(dir, "project.json")))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "project.json", files[0].Name())
}

func TestStats(t *testing.T) {
	f := &File{Entries: []*Entry{
		{ID: "a", Status: StatusUntranslated},
		{ID: "b", Status: StatusTranslated},
		{ID: "c", Status: StatusTranslated},
		{ID: "d", Status: StatusReviewed},
		{ID: "e", Status: StatusSkipped},
	}}

	s := f.Stats()
	assert.Equal(t, Stats{Total: 5, Untranslated: 1, Translated: 2, Reviewed: 1, Skipped: 1}, s)
}

func TestEntryByID(t *testing.T) {
	f := &File{Entries: []*Entry{{ID: "a"}, {ID: "b"}}}
	assert.Equal(t, f.Entries[1], f.EntryByID("b"))
	assert.Nil(t, f.EntryByID("missing"))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short"))
	assert.Equal(t, "line one line two", Preview("line one\nline two"))

	long := strings.Repeat("あ", 60)
	got := Preview(long)
	// Truncation counts runes, not bytes.
	assert.Equal(t, 50, len([]rune(got)))
}

func TestEventContext(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"CommonEvents.json/CE169(リブパイズリ)/dialog_64", "CE169"},
		{"Map001.json/Ev3(EV003)/p0/dialog_5", "Ev3/p0"},
		{"Map001.json/displayName", ""},
		{"plain", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EventContext(tt.id), tt.id)
	}
}

func TestControlCodeRE(t *testing.T) {
	text := `\C[3]Hello \N[1]!\{ <br>Take %1 gold.\}`
	matches := ControlCodeRE.FindAllString(text, -1)
	assert.Equal(t, []string{`\C[3]`, `\N[1]`, `\{`, `<br>`, `%1`, `\}`}, matches)
}

func TestJapaneseRE(t *testing.T) {
	assert.True(t, JapaneseRE.MatchString("こんにちは"))
	assert.True(t, JapaneseRE.MatchString("カタカナ"))
	assert.True(t, JapaneseRE.MatchString("漢字"))
	assert.False(t, JapaneseRE.MatchString("Hello, world!"))
}
