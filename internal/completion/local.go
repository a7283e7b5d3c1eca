// SPDX-License-Identifier: Apache-2.0

package completion

import (
	"context"
	"strings"
	"time"
)

// LocalProvider is the built-in deterministic provider: it streams a
// templated reply word by word. It keeps the chat surface fully usable
// without any external model wired in.
type LocalProvider struct {
	// Delay between tokens. Zero streams as fast as the consumer reads.
	Delay time.Duration
}

func NewLocalProvider(delay time.Duration) *LocalProvider {
	return &LocalProvider{Delay: delay}
}

func (p *LocalProvider) Name() string { return "local" }

func (p *LocalProvider) Stream(ctx context.Context, req Request, emit func(delta string) error) error {
	reply := p.compose(req)

	words := strings.Fields(reply)
	for i, word := range words {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		delta := word
		if i < len(words)-1 {
			delta += " "
		}
		if err := emit(delta); err != nil {
			return err
		}

		if p.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Delay):
			}
		}
	}

	return nil
}

func (p *LocalProvider) compose(req Request) string {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "Hello! Ask me anything and I will answer as best I can."
	}
	return "You asked: " + prompt + ". I do not have a model wired in yet, " +
		"but your question was recorded and will inform future patterns."
}
