// Package events publishes catalog events to a message broker. Publishing is
// best effort: callers log a failed publish and carry on.
package events

import (
	"context"
	"time"
)

const (
	TypeMovieCreated         = "movie.created"
	TypeMovieOwnerLinkFailed = "movie.owner_link_failed"
	TypeMovieBlobOrphaned    = "movie.blob_orphaned"
)

// Event is the payload sent for every catalog event.
type Event struct {
	Type       string    `json:"type"`
	MovieID    string    `json:"movie_id,omitempty"`
	ImageKey   string    `json:"image_key,omitempty"`
	Username   string    `json:"username,omitempty"`
	Title      string    `json:"title,omitempty"`
	Author     string    `json:"author,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher sends events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Nop discards every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

func (Nop) Close() error { return nil }
