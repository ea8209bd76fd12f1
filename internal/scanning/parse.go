package scanning

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
)

// ParseResponse recovers the JSON object from a model response.
//
// The whole text is tried first. If that fails, the text between the first
// "{" and the last "}" (inclusive) is tried. Anything else is a FormatError
// carrying the raw text.
func ParseResponse(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)

	obj, err := decodeObject(text)
	if err == nil {
		return obj, nil
	}

	startIdx := strings.Index(text, "{")
	endIdx := strings.LastIndex(text, "}")
	if startIdx == -1 || endIdx == -1 || endIdx <= startIdx {
		return nil, &FormatError{Raw: text, Err: errors.New("no JSON object found in response")}
	}

	obj, err = decodeObject(text[startIdx : endIdx+1])
	if err != nil {
		return nil, &FormatError{Raw: text, Err: err}
	}
	return obj, nil
}

func decodeObject(text string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, errors.Wrap(err, "unmarshaling json")
	}
	if obj == nil {
		return nil, errors.New("response is not a JSON object")
	}
	return obj, nil
}
