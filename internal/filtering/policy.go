// Package filtering decides which transformed records reach the success target.
package filtering

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"claimant-consumer/internal/domain"
	"claimant-consumer/pkg/cel"
)

// Decision is the verdict of a policy. Reason is set when a record is suppressed.
type Decision struct {
	Pass   bool
	Reason string
}

var admit = Decision{Pass: true}

func suppress(format string, args ...interface{}) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Policy admits or suppresses a transformed record. Policies never fail:
// anything they cannot judge is suppressed.
type Policy interface {
	Admit(ctx context.Context, topic string, res domain.TransformationResult) Decision
}

type AlwaysPass struct{}

func (AlwaysPass) Admit(context.Context, string, domain.TransformationResult) Decision {
	return admit
}

// RequiredField admits documents whose field holds a non-blank scalar.
type RequiredField struct {
	Field string
}

func (p RequiredField) Admit(_ context.Context, _ string, res domain.TransformationResult) Decision {
	if !gjson.ValidBytes(res.Transformed) {
		return suppress("document is malformed")
	}
	doc := gjson.ParseBytes(res.Transformed)
	if !doc.IsObject() {
		return suppress("document is not an object")
	}

	v := doc.Get(p.Field)
	switch {
	case !v.Exists() || v.Type == gjson.Null:
		return suppress("%s is absent", p.Field)
	case v.IsObject() || v.IsArray():
		return suppress("%s is not a scalar", p.Field)
	case strings.TrimSpace(v.String()) == "":
		return suppress("%s is blank", p.Field)
	}
	return admit
}

// Expression admits documents for which a CEL expression holds.
type Expression struct {
	program *cel.Program
}

func NewExpression(program *cel.Program) *Expression {
	return &Expression{program: program}
}

func (p *Expression) Admit(ctx context.Context, topic string, res domain.TransformationResult) Decision {
	var doc map[string]interface{}
	if err := json.Unmarshal(res.Transformed, &doc); err != nil {
		return suppress("document is malformed: %v", err)
	}

	ok, err := p.program.Evaluate(ctx, cel.Input{
		Topic:    topic,
		ID:       res.Extract.ID,
		Action:   res.Extract.Action.String(),
		Document: doc,
	})
	if err != nil {
		return suppress("expression %q failed: %v", p.program.String(), err)
	}
	if !ok {
		return suppress("expression %q is false", p.program.String())
	}
	return admit
}
