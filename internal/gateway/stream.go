package gateway

import (
	"context"
	"sync"
)

// Stream is a lazy, finite sequence of reply chunks. It cannot be restarted;
// once Next returns false it keeps returning false. Close must be called on
// every exit path and is safe to call more than once.
type Stream struct {
	ctx   context.Context
	src   ChunkStream
	chunk string
	err   error
	done  bool

	closeOnce sync.Once
	closeErr  error
}

func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	// Sources may keep handing out buffered chunks after an abort.
	if err := s.ctx.Err(); err != nil {
		s.done = true
		s.chunk = ""
		s.err = newError(CodePromptExecutionFailed, "stream aborted", err)
		return false
	}
	if s.src.Next() {
		s.chunk = s.src.Text()
		return true
	}
	s.done = true
	s.chunk = ""
	if err := s.src.Err(); err != nil {
		s.err = newError(CodePromptExecutionFailed, "stream failed", err)
	}
	return false
}

// Chunk returns the text delta read by the last call to Next.
func (s *Stream) Chunk() string {
	return s.chunk
}

func (s *Stream) Err() error {
	return s.err
}

func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.done = true
		s.closeErr = s.src.Close()
	})
	return s.closeErr
}
