package sink

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"taxosurv/domain/survival"
	"taxosurv/internal/errors"
)

type stream struct {
	path string
	file *os.File
	buf  *bufio.Writer
}

// FileSink writes comparison lines to one file per endpoint.
// Emit is safe for concurrent use; lines are written in call order.
type FileSink struct {
	mu      sync.Mutex
	streams map[survival.Endpoint]*stream
	closed  bool
}

// NewFileSink creates (truncating) the OS and PFS result files in outputDir
func NewFileSink(outputDir, osOutput, pfsOutput string) (*FileSink, error) {
	s := &FileSink{streams: make(map[survival.Endpoint]*stream, 2)}

	names := map[survival.Endpoint]string{
		survival.EndpointOS:  osOutput,
		survival.EndpointPFS: pfsOutput,
	}
	for _, endpoint := range survival.Endpoints {
		path := filepath.Join(outputDir, names[endpoint])
		file, err := os.Create(path)
		if err != nil {
			s.Close()
			return nil, errors.IOError(path, err)
		}
		s.streams[endpoint] = &stream{path: path, file: file, buf: bufio.NewWriter(file)}
	}
	return s, nil
}

// Emit appends the comparison's line to its endpoint stream
func (s *FileSink) Emit(c survival.Comparison) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.InternalError("emit on closed result sink")
	}
	st, ok := s.streams[c.Endpoint]
	if !ok {
		return errors.InvalidInput(fmt.Sprintf("no result stream for endpoint %q", c.Endpoint))
	}
	if _, err := st.buf.WriteString(c.Line() + "\n"); err != nil {
		return errors.IOError(st.path, err)
	}
	return nil
}

// Paths returns the file backing each endpoint stream
func (s *FileSink) Paths() map[survival.Endpoint]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[survival.Endpoint]string, len(s.streams))
	for endpoint, st := range s.streams {
		out[endpoint] = st.path
	}
	return out
}

// Close flushes and closes every stream. Calling Close twice is a no-op.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	for _, endpoint := range survival.Endpoints {
		st, ok := s.streams[endpoint]
		if !ok {
			continue
		}
		if err := st.buf.Flush(); err != nil && firstErr == nil {
			firstErr = errors.IOError(st.path, err)
		}
		if err := st.file.Close(); err != nil && firstErr == nil {
			firstErr = errors.IOError(st.path, err)
		}
	}
	return firstErr
}
