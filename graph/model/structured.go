package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when a structured reply contains no JSON object.
var ErrNoJSON = errors.New("model reply contains no JSON object")

// StructuredPredict asks m for a reply shaped like T and decodes it.
//
// schema is a short description of the expected JSON object (field names
// and meaning); it is sent as a trailing system instruction. The reply may
// wrap the object in prose or a Markdown code fence; the first complete
// JSON object is decoded and anything after it is ignored.
func StructuredPredict[T any](ctx context.Context, m ChatModel, messages []Message, schema string) (T, error) {
	var zero T

	prompt := make([]Message, 0, len(messages)+1)
	prompt = append(prompt, messages...)
	prompt = append(prompt, System("Respond only with a single JSON object, no other text. "+
		"The object must have this shape: "+schema))

	out, err := m.Chat(ctx, prompt, nil)
	if err != nil {
		return zero, err
	}

	start := strings.Index(out.Text, "{")
	if start < 0 {
		return zero, ErrNoJSON
	}

	var v T
	if err := json.NewDecoder(strings.NewReader(out.Text[start:])).Decode(&v); err != nil {
		return zero, fmt.Errorf("decode structured reply: %w", err)
	}
	return v, nil
}
