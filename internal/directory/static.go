package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ent0n29/receptionist/internal/session"
)

// DefaultDevOwnerID owns the built-in dev receptionist.
const DefaultDevOwnerID = "dev-user-123"

// Entry is one registered number in a seed file.
type Entry struct {
	PhoneNumber string              `json:"phone_number"`
	OwnerID     string              `json:"owner_id"`
	Config      session.AgentConfig `json:"config"`
}

// StaticDirectory serves numbers from memory. Numbers that are not seeded fall
// back to the dev receptionist so local calls always reach an agent.
type StaticDirectory struct {
	mu         sync.RWMutex
	entries    map[string]Entry
	devOwnerID string
}

func NewStaticDirectory(seedFile, devOwnerID string) (*StaticDirectory, error) {
	if strings.TrimSpace(devOwnerID) == "" {
		devOwnerID = DefaultDevOwnerID
	}
	d := &StaticDirectory{
		entries:    make(map[string]Entry),
		devOwnerID: devOwnerID,
	}
	if strings.TrimSpace(seedFile) == "" {
		return d, nil
	}
	raw, err := os.ReadFile(seedFile)
	if err != nil {
		return nil, fmt.Errorf("read directory seed: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode directory seed %s: %w", seedFile, err)
	}
	for _, e := range entries {
		d.Register(e)
	}
	return d, nil
}

// Register adds or replaces an entry.
func (d *StaticDirectory) Register(e Entry) {
	key := NormalizeNumber(e.PhoneNumber)
	if key == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[key] = e
}

func (d *StaticDirectory) LookupByCalledNumber(_ context.Context, number string) (session.AgentConfig, error) {
	d.mu.RLock()
	e, ok := d.entries[NormalizeNumber(number)]
	d.mu.RUnlock()
	if ok {
		return e.Config, nil
	}
	return devConfig(), nil
}

func (d *StaticDirectory) ResolveOwnerID(_ context.Context, number string) (string, error) {
	d.mu.RLock()
	e, ok := d.entries[NormalizeNumber(number)]
	d.mu.RUnlock()
	if ok && strings.TrimSpace(e.OwnerID) != "" {
		return e.OwnerID, nil
	}
	return d.devOwnerID, nil
}

func (d *StaticDirectory) Close() error { return nil }

func devConfig() session.AgentConfig {
	cfg := session.DefaultAgentConfig()
	cfg.Greeting = "Hello! Thank you for calling our office. How can I help you today?"
	return cfg
}
