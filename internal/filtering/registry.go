package filtering

import (
	"context"
	"fmt"

	"claimant-consumer/internal/config"
	"claimant-consumer/internal/constants"
	"claimant-consumer/internal/domain"
	"claimant-consumer/pkg/cel"
)

// ClaimantRequiredField must be present for a claimant record to be kept.
const ClaimantRequiredField = "nino"

// Registry holds the policies of each topic. Topics without policies pass.
type Registry struct {
	byTopic map[string][]Policy
}

func NewRegistry() *Registry {
	return &Registry{byTopic: make(map[string][]Policy)}
}

func (r *Registry) Add(topic string, p Policy) {
	r.byTopic[topic] = append(r.byTopic[topic], p)
}

// Admit applies every policy of the topic in order; the first suppression wins.
func (r *Registry) Admit(ctx context.Context, topic string, res domain.TransformationResult) Decision {
	for _, p := range r.byTopic[topic] {
		if d := p.Admit(ctx, topic, res); !d.Pass {
			return d
		}
	}
	return admit
}

// FromConfig builds policies from topic filters. The claimant topic always
// requires a nino unless another field is configured.
func FromConfig(topics []config.TopicConfig) (*Registry, error) {
	r := NewRegistry()

	var evaluator *cel.Evaluator
	for _, tc := range topics {
		required := tc.Filter.RequiredField
		if required == "" && tc.Name == constants.ClaimantTopic {
			required = ClaimantRequiredField
		}
		if required != "" {
			r.Add(tc.Name, RequiredField{Field: required})
		}

		if tc.Filter.Expression == "" {
			continue
		}
		if evaluator == nil {
			var err error
			if evaluator, err = cel.NewEvaluator(); err != nil {
				return nil, err
			}
		}
		program, err := evaluator.CompileFilter(tc.Filter.Expression)
		if err != nil {
			return nil, fmt.Errorf("topic %s: %w", tc.Name, err)
		}
		r.Add(tc.Name, NewExpression(program))
	}

	if _, ok := r.byTopic[constants.ClaimantTopic]; !ok {
		r.Add(constants.ClaimantTopic, RequiredField{Field: ClaimantRequiredField})
	}

	return r, nil
}
