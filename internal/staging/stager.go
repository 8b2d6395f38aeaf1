package staging

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/receptionist/internal/voice"
)

var (
	// ErrInvalidName is returned for names outside the served pattern.
	ErrInvalidName = errors.New("staging: invalid audio file name")
	ErrNotFound    = errors.New("staging: audio file not found")
)

var (
	validName    = regexp.MustCompile(`^voice_[a-zA-Z0-9_-]+\.(mp3|wav)$`)
	unsafeCallID = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)
)

// ValidFilename reports whether name may be served back to the gateway.
func ValidFilename(name string) bool {
	return validName.MatchString(name)
}

// unservedFactor stretches the delete delay for clips the gateway never fetched.
const unservedFactor = 2

// Stager writes synthesized clips to a scratch directory and removes each one
// a fixed delay after it is first opened. A clip that is never opened is
// removed after unservedFactor times that delay.
type Stager struct {
	dir         string
	deleteAfter time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu        sync.Mutex
	scheduled map[string]*pendingDelete
}

type pendingDelete struct {
	timer  *time.Timer
	served bool
}

func NewStager(dir string, deleteAfter time.Duration, logger *slog.Logger) (*Stager, error) {
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Join(os.TempDir(), "receptionist-audio")
	}
	if deleteAfter <= 0 {
		deleteAfter = 60 * time.Second
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Stager{
		dir:         dir,
		deleteAfter: deleteAfter,
		logger:      logger.With("component", "staging"),
		now:         time.Now,
		scheduled:   make(map[string]*pendingDelete),
	}, nil
}

func (s *Stager) Dir() string { return s.dir }

// Stage writes clip to disk and returns its public file name.
func (s *Stager) Stage(callID string, clip voice.Audio) (string, error) {
	if len(clip.Data) == 0 {
		return "", voice.ErrEmptyAudio
	}
	id := unsafeCallID.ReplaceAllString(callID, "")
	if id == "" {
		id = "call"
	}
	ext := "mp3"
	if clip.ContentType == "audio/wav" {
		ext = "wav"
	}
	name := fmt.Sprintf("voice_%s_%d.%s", id, s.now().UnixMilli(), ext)

	tmp, err := os.CreateTemp(s.dir, ".staging-*")
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}
	if _, err := tmp.Write(clip.Data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write staged file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close staged file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("chmod staged file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("publish staged file: %w", err)
	}

	s.mu.Lock()
	s.scheduled[name] = &pendingDelete{timer: s.afterDelay(unservedFactor*s.deleteAfter, name)}
	s.mu.Unlock()
	return name, nil
}

// Open returns the staged file for reading. The caller must close it and
// then call ScheduleDelete, whether or not the read succeeded.
func (s *Stager) Open(name string) (*os.File, os.FileInfo, error) {
	if !ValidFilename(name) {
		return nil, nil, ErrInvalidName
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open staged file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat staged file: %w", err)
	}
	return f, info, nil
}

// ScheduleDelete removes name after the configured delay. Only the first
// call per file moves the deadline; later fetches keep it.
func (s *Stager) ScheduleDelete(name string) {
	if !ValidFilename(name) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.scheduled[name]; ok {
		if !p.served {
			p.served = true
			p.timer.Reset(s.deleteAfter)
		}
		return
	}
	s.scheduled[name] = &pendingDelete{timer: s.afterDelay(s.deleteAfter, name), served: true}
}

func (s *Stager) afterDelay(d time.Duration, name string) *time.Timer {
	return time.AfterFunc(d, func() {
		s.remove(name)
	})
}

func (s *Stager) remove(name string) {
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("delete staged audio failed", "file", name, "error", err)
	}
	s.mu.Lock()
	delete(s.scheduled, name)
	s.mu.Unlock()
}

// Pending reports how many served clips await deletion.
func (s *Stager) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.scheduled {
		if p.served {
			n++
		}
	}
	return n
}

// Staged reports how many clips are on disk awaiting any deletion.
func (s *Stager) Staged() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scheduled)
}

// Close stops pending timers and deletes their files immediately.
func (s *Stager) Close() error {
	s.mu.Lock()
	names := make([]string, 0, len(s.scheduled))
	for name, p := range s.scheduled {
		if p.timer.Stop() {
			names = append(names, name)
		}
	}
	s.mu.Unlock()
	for _, name := range names {
		s.remove(name)
	}
	return nil
}
