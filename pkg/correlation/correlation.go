// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-keyengine.
//
// go-keyengine is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package correlation carries a caller supplied identifier through the
// context passed to Engine.PerformContext so failures can be traced back
// to the request that caused them.
package correlation

import (
	"context"

	"github.com/google/uuid"
)

type contextKey struct{}

// LogKey is the structured logging key for correlation IDs
const LogKey = "correlation_id"

// WithID returns a copy of ctx carrying id.
func WithID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, contextKey{}, id)
}

// ID returns the correlation ID of ctx, or "" when none is set.
func ID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// NewID generates a UUID v4 correlation ID.
func NewID() string {
	return uuid.New().String()
}

// Ensure returns ctx and its correlation ID, attaching a new ID when ctx
// has none.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := ID(ctx); id != "" {
		return ctx, id
	}
	id := NewID()
	return WithID(ctx, id), id
}
