package client

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultSystemPrompt is the system prompt for game text translation.
// {{targetLang}} is replaced with the configured target language name.
const DefaultSystemPrompt = `You are a professional translator specializing in video game localization. You are translating RPG Maker game text.

CONTEXT AWARENESS:
- The text comes from an RPG: dialogue, character names, item names, choices, system messages
- Tone: match the register of the source — casual dialogue stays casual, narration stays literary
- Keep character voice consistent; honorifics and speech quirks should carry over naturally

IMPORTANT TRANSLATION PRINCIPLES:
- Translate for NATURALNESS and FLUENCY in {{targetLang}}, not word-for-word
- Use idiomatic expressions natural to {{targetLang}}
- Adapt sentence structure to {{targetLang}} conventions
- Maintain the original tone and intent

TECHNICAL REQUIREMENTS:
- Preserve ALL RPG Maker control codes exactly as-is (\V[1], \N[2], \C[3], \{, \}, \$, \., \|, \!, %1, %2, <br>, etc.)
- Preserve leading/trailing whitespace and line break patterns
- Keep proper nouns consistent across entries
- Return ONLY the translation, no explanations or notes.`

// BatchSystemPrompt extends the default prompt with the batch response
// format: a JSON object keyed by line identifier.
const BatchSystemPrompt = DefaultSystemPrompt + `
- You will receive multiple numbered entries. Return ONLY a JSON object mapping each key ("Line1", "Line2", ...) to its translation, no markdown code blocks.`

// PolishSystemPrompt is the system prompt for the grammar-only polish pass.
const PolishSystemPrompt = `You are an editor for video game localization. You will receive a translated line of game text in {{targetLang}}.

Fix grammar, spelling, and awkward phrasing ONLY. Do not change the meaning, tone, names, or any control codes (\V[1], \C[3], %1, <br>, etc.). If the text is already fine, return it unchanged.

Return ONLY the corrected text, no explanations.`

// resolvePrompt substitutes the target language and appends glossary hints.
// Glossary terms are sorted so the prompt is stable across runs.
func resolvePrompt(prompt, targetLang string, glossary map[string]string) string {
	out := strings.ReplaceAll(prompt, "{{targetLang}}", targetLang)
	if len(glossary) == 0 {
		return out
	}

	terms := make([]string, 0, len(glossary))
	for term := range glossary {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	var b strings.Builder
	b.WriteString(out)
	b.WriteString("\n\nGLOSSARY (always use these exact translations):\n")
	for _, term := range terms {
		fmt.Fprintf(&b, "- %s = %s\n", term, glossary[term])
	}
	return b.String()
}

// buildTranslateUserPrompt renders a single-entry translation request.
func buildTranslateUserPrompt(req TranslateRequest) string {
	var b strings.Builder
	b.WriteString("Translate this game text:\n\n")
	b.WriteString(req.Text)
	if req.Field != "" {
		fmt.Fprintf(&b, "\n\n(field: %s)", req.Field)
	}
	if req.Context != "" {
		fmt.Fprintf(&b, "\n(context: %s)", req.Context)
	}
	if req.Correction != "" {
		if req.OldTranslation != "" {
			fmt.Fprintf(&b, "\n\nA previous attempt was rejected: %s", req.OldTranslation)
		}
		fmt.Fprintf(&b, "\nCorrection from the editor: %s", req.Correction)
	}
	return b.String()
}

// buildBatchUserPrompt renders a batched translation request. Each item is
// listed under its key; the model must echo the keys back in a JSON object.
func buildBatchUserPrompt(items []BatchItem) string {
	var b strings.Builder
	b.WriteString("Translate these game text entries:\n\n")
	for _, item := range items {
		fmt.Fprintf(&b, "%s: %s\n", item.Key, escapeForPrompt(item.Text))
		if item.Field != "" || item.Context != "" {
			b.WriteString("   (")
			if item.Field != "" {
				fmt.Fprintf(&b, "field: %s", item.Field)
			}
			if item.Context != "" {
				if item.Field != "" {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "context: %s", escapeForPrompt(item.Context))
			}
			b.WriteString(")\n")
		}
	}
	fmt.Fprintf(&b, "\nReturn ONLY a JSON object with exactly %d keys (%q through %q) mapping each key to its translation.",
		len(items), items[0].Key, items[len(items)-1].Key)
	return b.String()
}

// escapeForPrompt flattens newlines so multi-line source text stays on one
// numbered line in the prompt.
func escapeForPrompt(s string) string {
	return strings.ReplaceAll(s, "\n", "\\n")
}
