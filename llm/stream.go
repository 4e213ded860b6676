package llm

import "sync"

// sliceStream replays a fixed set of chunks and then reports err.
type sliceStream struct {
	mu      sync.Mutex
	chunks  []*Chunk
	err     error
	pos     int
	current *Chunk
	closed  bool
}

// NewSliceStream returns a Stream that yields chunks in order and then
// terminates with err (nil for a clean end).
func NewSliceStream(chunks []*Chunk, err error) Stream {
	return &sliceStream{chunks: chunks, err: err}
}

func (s *sliceStream) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.pos >= len(s.chunks) {
		s.current = nil
		return false
	}
	s.current = s.chunks[s.pos]
	s.pos++
	return true
}

func (s *sliceStream) Chunk() *Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *sliceStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos < len(s.chunks) {
		return nil
	}
	return s.err
}

func (s *sliceStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Collect drains s, concatenating the first choice's deltas. The stream is
// closed before returning.
func Collect(s Stream) (string, error) {
	defer s.Close()

	var out []byte
	for s.Next() {
		c := s.Chunk()
		if c == nil || len(c.Choices) == 0 {
			continue
		}
		out = append(out, c.Choices[0].Delta.Content...)
	}
	return string(out), s.Err()
}

// Ensure sliceStream implements Stream
var _ Stream = (*sliceStream)(nil)
