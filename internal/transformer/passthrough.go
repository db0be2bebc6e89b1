package transformer

import (
	"bytes"
	"context"
	"encoding/json"
)

// Passthrough forwards the document unchanged apart from whitespace.
type Passthrough struct{}

func (Passthrough) Transform(_ context.Context, doc []byte) ([]byte, error) {
	if _, err := parseObject(doc); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
