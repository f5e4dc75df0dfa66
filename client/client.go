// Package client implements the translation client contract and its
// OpenAI-compatible implementation. The same client serves cloud APIs
// (api.openai.com, Groq) and local OpenAI-compatible servers (Ollama,
// LM Studio, llama.cpp) via a custom base URL.
package client

import "context"

// TranslateRequest carries one entry's text plus optional hints.
type TranslateRequest struct {
	// Text is the source text to translate.
	Text string
	// Context is optional surrounding dialogue or scene information.
	Context string
	// Field tags where the text appears ("dialog", "name", "choice", ...).
	Field string
	// Correction is user guidance for a redo ("keep the honorific", ...).
	Correction string
	// OldTranslation is the previous attempt, supplied alongside Correction.
	OldTranslation string
}

// BatchItem is one entry in a batched translation request.
type BatchItem struct {
	// Key identifies the item within the batch ("Line1", "Line2", ...).
	Key string
	// Text is the source text.
	Text string
	// Context is optional scene information.
	Context string
	// Field tags where the text appears.
	Field string
}

// Exchange is one prior request/response pair passed as conversation
// history to give the model continuity across batches.
type Exchange struct {
	User      string
	Assistant string
}

// Client is the translation service contract consumed by the engine and
// the batch-size tuner.
type Client interface {
	// Translate translates a single entry. Fails with a connectivity or
	// protocol error on network/API failure.
	Translate(ctx context.Context, req TranslateRequest) (string, error)

	// TranslateBatch translates an ordered batch in one request and
	// returns a map from item key to translated text. Keys missing from
	// the result are failed-for-that-item; no error is returned for
	// partial failure.
	TranslateBatch(ctx context.Context, items []BatchItem, history []Exchange) (map[string]string, error)

	// Polish runs a grammar-only pass over an existing translation.
	Polish(ctx context.Context, text string) (string, error)

	// IsCloud reports whether the backing service runs on remote hardware.
	// Cloud services have no local VRAM constraint, so batch-size
	// calibration is pointless for them.
	IsCloud() bool
}
