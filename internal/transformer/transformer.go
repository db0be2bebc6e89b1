// Package transformer reshapes decrypted source documents into target rows.
package transformer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"claimant-consumer/internal/config"
	"claimant-consumer/internal/constants"
	"claimant-consumer/internal/keyservice"
)

// Transformer converts one source document to its target shape.
type Transformer interface {
	Transform(ctx context.Context, doc []byte) ([]byte, error)
}

// Func adapts an ordinary function to Transformer.
type Func func(ctx context.Context, doc []byte) ([]byte, error)

func (f Func) Transform(ctx context.Context, doc []byte) ([]byte, error) {
	return f(ctx, doc)
}

// Registry maps a topic to its transformer. It is built once at startup and
// only read afterwards.
type Registry struct {
	byTopic map[string]Transformer
}

func NewRegistry() *Registry {
	return &Registry{byTopic: make(map[string]Transformer)}
}

func (r *Registry) Register(topic string, t Transformer) {
	r.byTopic[topic] = t
}

func (r *Registry) Lookup(topic string) (Transformer, bool) {
	t, ok := r.byTopic[topic]
	return t, ok
}

func (r *Registry) Len() int {
	return len(r.byTopic)
}

// FromConfig registers the named transformer of every topic that has one.
// Topics without a transformer are left unregistered.
func FromConfig(topics []config.TopicConfig, keys keyservice.Service, ninoSalt string) (*Registry, error) {
	r := NewRegistry()
	for _, tc := range topics {
		if tc.Transformer == "" {
			continue
		}
		t, err := byName(tc.Transformer, keys, ninoSalt)
		if err != nil {
			return nil, fmt.Errorf("topic %s: %w", tc.Name, err)
		}
		r.Register(tc.Name, t)
	}
	return r, nil
}

func byName(name string, keys keyservice.Service, ninoSalt string) (Transformer, error) {
	switch name {
	case constants.TransformerClaimant:
		return NewClaimant(ninoSalt), nil
	case constants.TransformerContract:
		return Contract{}, nil
	case constants.TransformerStatement:
		return NewStatement(keys), nil
	case constants.TransformerPassthrough:
		return Passthrough{}, nil
	default:
		return nil, fmt.Errorf("unknown transformer %q", name)
	}
}

func parseObject(doc []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(doc) {
		return gjson.Result{}, fmt.Errorf("document is not valid JSON")
	}
	res := gjson.ParseBytes(doc)
	if !res.IsObject() {
		return gjson.Result{}, fmt.Errorf("document is not a JSON object")
	}
	return res, nil
}

// requiredID reads _id.<field>, or a top level <field> when _id lacks it.
func requiredID(doc gjson.Result, field string) (string, error) {
	for _, path := range []string{"_id." + field, field} {
		if v := doc.Get(path); v.Exists() && v.Type != gjson.Null && v.String() != "" {
			return v.String(), nil
		}
	}
	return "", fmt.Errorf("%s is missing", field)
}

// optional returns the value at path, or nil so the output carries a JSON null.
func optional(doc gjson.Result, path string) interface{} {
	v := doc.Get(path)
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}
	return v.Value()
}

func render(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to render document: %w", err)
	}
	return b, nil
}
