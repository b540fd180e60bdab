package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrNoJSON is returned when a model reply carries no JSON object.
var ErrNoJSON = errors.New("no json object in model response")

// ErrMalformedJSON is returned when the JSON in a model reply cannot be used.
var ErrMalformedJSON = errors.New("malformed json in model response")

var jsonObjectPattern = regexp.MustCompile(`\{[\s\S]*\}`)

// ExtractJSON returns the outermost {...} span of a model reply.
func ExtractJSON(content string) (string, error) {
	match := jsonObjectPattern.FindString(content)
	if match == "" {
		return "", ErrNoJSON
	}
	return match, nil
}

// DecodeJSON extracts the JSON object from content, validates it against schema when
// one is given, and decodes it into T.
func DecodeJSON[T any](content string, schema *jsonschema.Schema) (T, error) {
	var out T

	raw, err := ExtractJSON(content)
	if err != nil {
		return out, err
	}

	if schema != nil {
		var doc interface{}
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return out, fmt.Errorf("%w: parse: %w", ErrMalformedJSON, err)
		}
		if err := schema.Validate(doc); err != nil {
			return out, fmt.Errorf("%w: schema: %w", ErrMalformedJSON, err)
		}
	}

	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, fmt.Errorf("%w: decode: %w", ErrMalformedJSON, err)
	}
	return out, nil
}
