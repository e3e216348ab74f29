package action

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/resolvd/internal/classifier"
	"github.com/fyrsmithlabs/resolvd/internal/knowledge"
	"github.com/fyrsmithlabs/resolvd/internal/secrets"
	"github.com/fyrsmithlabs/resolvd/internal/strategy"
)

// Set routes each strategy to its generator and validates the result.
type Set struct {
	generators map[strategy.Strategy]Generator
	preventive *Preventive
}

// Options configures NewSet.
type Options struct {
	Knowledge        *knowledge.Base
	Scrubber         secrets.Scrubber
	AllowDestructive bool
}

// NewSet wires the default generator for every strategy.
func NewSet(opts Options) *Set {
	kb := opts.Knowledge
	if kb == nil {
		kb = knowledge.MustBuiltin()
	}
	prev := NewPreventive(kb)
	return &Set{
		generators: map[strategy.Strategy]Generator{
			strategy.ImmediateFix: NewImmediate(kb),
			strategy.SelfHealing:  SelfHeal{AllowDestructive: opts.AllowDestructive},
			strategy.Preventive:   prev,
			strategy.AIPowered:    NewAIRequest(kb, opts.Scrubber),
		},
		preventive: prev,
	}
}

// Preventive returns the schedule registry.
func (s *Set) Preventive() *Preventive {
	return s.preventive
}

// Generate produces and validates an action. Every error is a
// *GenerationFailure; validator rejections wrap ErrActionValidationFailed.
func (s *Set) Generate(ctx context.Context, st strategy.Strategy, c classifier.Classification, req Request) (Action, error) {
	g, ok := s.generators[st]
	if !ok {
		return Action{}, failure(st, c.Kind, ErrUnsupported)
	}
	a, err := g.Generate(ctx, st, c, req)
	if err != nil {
		var gf *GenerationFailure
		if errors.As(err, &gf) {
			return Action{}, gf
		}
		return Action{}, failure(st, c.Kind, err)
	}
	if err := Validate(a); err != nil {
		return Action{}, failure(st, c.Kind, err)
	}
	return a, nil
}
