package synthesis

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/book-expert/speech-batch/internal/core"
)

// parseVoiceList normalizes the voice-list body. Recognized shapes, tried in
// order:
//
//	["voice", ...]
//	{"voices": ["voice", ...]}
//	{"voices": [{"id": "voice", ...}, ...]}
//
// Anything else gets a best-effort scan: the first object property (in
// sorted key order, for determinism) whose value is an array is extracted
// with the same element rules. A body matching none of these fails with
// core.ErrUnrecognizedResponse.
func parseVoiceList(body []byte) ([]string, error) {
	var raw any

	err := json.Unmarshal(body, &raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode voice list: %w", err)
	}

	switch shape := raw.(type) {
	case []any:
		return extractIdentifiers(shape)
	case map[string]any:
		return scanObjectForVoices(shape)
	default:
		return nil, core.ErrUnrecognizedResponse
	}
}

// scanObjectForVoices looks for an array-valued property to extract, trying
// the canonical "voices" key first.
func scanObjectForVoices(object map[string]any) ([]string, error) {
	if wrapped, ok := object["voices"].([]any); ok {
		return extractIdentifiers(wrapped)
	}

	keys := make([]string, 0, len(object))
	for key := range object {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		wrapped, ok := object[key].([]any)
		if !ok {
			continue
		}

		voices, err := extractIdentifiers(wrapped)
		if err == nil {
			return voices, nil
		}
	}

	return nil, core.ErrUnrecognizedResponse
}

// extractIdentifiers reads voice identifiers from array elements that are
// either bare strings or records carrying an "id" field.
func extractIdentifiers(elements []any) ([]string, error) {
	voices := make([]string, 0, len(elements))

	for _, element := range elements {
		switch value := element.(type) {
		case string:
			voices = append(voices, value)
		case map[string]any:
			id, ok := value["id"].(string)
			if !ok {
				return nil, core.ErrUnrecognizedResponse
			}

			voices = append(voices, id)
		default:
			return nil, core.ErrUnrecognizedResponse
		}
	}

	return voices, nil
}
