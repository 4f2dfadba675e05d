package mux

import (
	"github.com/go-logr/logr"

	"github.com/bbc/gst-roq/pkg/flowid"
)

// Option configures a Muxer at construction time, generalizing the
// teacher's relay.go functional-option pattern
// (func(r *relayPeer)) from a single fixed type to Muxer.
type Option func(*Muxer)

// WithLogger overrides the package default logger for this Muxer.
func WithLogger(l logr.Logger) Option {
	return func(m *Muxer) {
		m.logger = l
	}
}

// WithAllocator overrides the flow-id allocator this Muxer claims its
// ids from. Tests use this to avoid sharing flowid.Default() global
// state across cases.
func WithAllocator(a *flowid.Allocator) Option {
	return func(m *Muxer) {
		m.allocator = a
	}
}
