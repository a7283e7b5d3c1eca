// SPDX-License-Identifier: Apache-2.0

// Package completion produces the chat token stream behind /stream/chat.
// Providers are opaque to the transport: tokens go out in order through
// the emit callback and the stream ends when Stream returns.
package completion

import "context"

// Request is one chat turn.
type Request struct {
	Prompt    string
	SessionID string
}

// Provider streams a reply as ordered token deltas. Emit is called once
// per delta on the calling goroutine; an emit error cancels the stream
// and is returned as-is. Stream must honor ctx cancellation between
// tokens.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request, emit func(delta string) error) error
}
