// Package llm wraps the model provider behind a small text-in, text-out
// interface.
package llm

import (
	"context"
	"io"
	"strings"
)

// Provider roles.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message is one turn of provider history.
type Message struct {
	Role    string
	Content string
}

// Request is a chat request. History must end with a user turn.
type Request struct {
	Model   string
	System  string
	History []Message
}

// Stream yields text deltas. Next returns io.EOF after the last delta.
type Stream interface {
	Next() (string, error)
	Close() error
}

// Provider generates text. It is treated as opaque: calls are never retried.
type Provider interface {
	// Stream starts a streamed completion. Provider errors may surface
	// either here or on the first call to Next.
	Stream(ctx context.Context, req Request) (Stream, error)
	// Generate returns the full, buffered completion.
	Generate(ctx context.Context, req Request) (string, error)
	ListModels(ctx context.Context) ([]string, error)
}

// Collect drains s into a single string.
func Collect(s Stream) (string, error) {
	defer s.Close()
	var sb strings.Builder
	for {
		delta, err := s.Next()
		if err == io.EOF {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(delta)
	}
}

// SliceStream is a Stream over fixed deltas. Err, if set, is returned after
// the deltas instead of io.EOF.
type SliceStream struct {
	Deltas []string
	Err    error
	pos    int
}

func (s *SliceStream) Next() (string, error) {
	if s.pos < len(s.Deltas) {
		d := s.Deltas[s.pos]
		s.pos++
		return d, nil
	}
	if s.Err != nil {
		return "", s.Err
	}
	return "", io.EOF
}

func (s *SliceStream) Close() error { return nil }
