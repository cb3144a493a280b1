// Package storage implements the Storage Sink collaborator: an
// interpretation-free callback that receives a completed speaking turn's
// filename and raw bytes. The core handler never parses the bytes.
package storage

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/n0remac/classroom-ptt/internal/logging"
)

// Entry is one retained capture.
type Entry struct {
	Filename string
	Data     []byte
}

// Sink is the callback surface the room handler writes captured turns to.
type Sink interface {
	Store(filename string, data []byte)
	Entries() []Entry
}

// MemorySink retains every entry in process memory. It is the default sink
// and backs the ZIP download endpoint directly.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Store(filename string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, Entry{Filename: filename, Data: data})
}

func (s *MemorySink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// FileSink writes captures under a per-room directory. The actual write is
// offloaded to a small fixed worker pool so a slow disk never stalls the
// room actor that calls Store.
type FileSink struct {
	dir  string
	log  *logging.Logger
	jobs chan job
	wg   sync.WaitGroup

	mu    sync.Mutex
	names []string
}

type job struct {
	filename string
	data     []byte
}

const fileSinkWorkers = 2

// NewFileSink creates the room's capture directory and starts its worker
// pool. Callers should call Close when the room is torn down.
func NewFileSink(baseDir, roomCode string, log *logging.Logger) (*FileSink, error) {
	dir := filepath.Join(baseDir, roomCode)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &FileSink{
		dir:  dir,
		log:  log,
		jobs: make(chan job, 64),
	}
	for i := 0; i < fileSinkWorkers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s, nil
}

func (s *FileSink) worker() {
	defer s.wg.Done()
	for j := range s.jobs {
		path := filepath.Join(s.dir, j.filename)
		if err := os.WriteFile(path, j.data, 0o644); err != nil {
			s.log.Errorf("write capture %s: %v", path, err)
			continue
		}
		s.mu.Lock()
		s.names = append(s.names, j.filename)
		s.mu.Unlock()
	}
}

func (s *FileSink) Store(filename string, data []byte) {
	select {
	case s.jobs <- job{filename: filename, data: data}:
	default:
		s.log.Warnf("capture queue full, dropping %s", filename)
	}
}

// Entries reads every retained file back from disk. It is only called by
// the ZIP download path, which happens far less often than Store.
func (s *FileSink) Entries() []Entry {
	s.mu.Lock()
	names := make([]string, len(s.names))
	copy(names, s.names)
	s.mu.Unlock()

	out := make([]Entry, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			s.log.Errorf("read capture %s: %v", name, err)
			continue
		}
		out = append(out, Entry{Filename: name, Data: data})
	}
	return out
}

// Close drains pending writes and stops the worker pool.
func (s *FileSink) Close() {
	close(s.jobs)
	s.wg.Wait()
}
