// Package lifecycle bridges notesync event streams to lifecycle sources.
package lifecycle

import (
	"context"

	"github.com/aretw0/lifecycle"
)

type source[E lifecycle.Event] struct {
	events <-chan E
	out    chan lifecycle.Event
}

// NewSource creates a lifecycle.Source over a typed event channel, such as
// engine subscriptions or the file cache queue watcher.
// The output closes when events closes or the context passed to Start ends.
func NewSource[E lifecycle.Event](events <-chan E) lifecycle.Source {
	return &source[E]{
		events: events,
		out:    make(chan lifecycle.Event),
	}
}

func (s *source[E]) Events() <-chan lifecycle.Event {
	return s.out
}

func (s *source[E]) Start(ctx context.Context) error {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-s.events:
				if !ok {
					return nil
				}
				select {
				case s.out <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}
