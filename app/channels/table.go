package channels

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Table is the channel routing table, backed by a YAML document on disk.
// Mutations persist immediately via an atomic replace of the file. Reads are
// served from memory.
type Table struct {
	path string
	mu   sync.RWMutex
	list []Channel
}

func NewTable(path string) (*Table, error) {
	t := &Table{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		// Missing document is an empty table, never a startup failure
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read channels file: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse channels file: %w", err)
	}

	for i, ch := range doc.Channels {
		if ch.ChannelID == "" {
			return nil, fmt.Errorf("channel at index %d has no channel_id", i)
		}
		if ch.DestinationAccount == "" {
			doc.Channels[i].DestinationAccount = "default"
		}
	}

	t.list = doc.Channels
	return t, nil
}

// Resolve returns the configuration for channelID. When no exact match
// exists the first configured channel is returned as the documented
// default-routing policy; the second return value reports whether the match
// was exact. Resolving against an empty table returns ok=false with a zero
// Channel.
func (t *Table) Resolve(channelID string) (Channel, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, ch := range t.list {
		if ch.ChannelID == channelID {
			return ch, true
		}
	}

	if len(t.list) == 0 {
		return Channel{}, false
	}

	slog.Warn("No channel match, routing to default channel",
		"channel_id", channelID, "default", t.list[0].Name)
	return t.list[0], false
}

func (t *Table) All() []Channel {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Channel, len(t.list))
	copy(out, t.list)
	return out
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.list)
}

// Add appends a channel and persists the table. Adding a channel_id that is
// already present is an error.
func (t *Table) Add(ch Channel) error {
	if ch.ChannelID == "" {
		return fmt.Errorf("channel_id is required")
	}
	if ch.DestinationAccount == "" {
		ch.DestinationAccount = "default"
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, existing := range t.list {
		if existing.ChannelID == ch.ChannelID {
			return fmt.Errorf("channel %s already configured", ch.ChannelID)
		}
	}

	updated := append(append([]Channel{}, t.list...), ch)
	if err := t.persist(updated); err != nil {
		return err
	}
	t.list = updated
	return nil
}

// Remove deletes a channel by id or name and persists the table.
func (t *Table) Remove(idOrName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	updated := make([]Channel, 0, len(t.list))
	removed := false
	for _, ch := range t.list {
		if ch.ChannelID == idOrName || ch.Name == idOrName {
			removed = true
			continue
		}
		updated = append(updated, ch)
	}
	if !removed {
		return fmt.Errorf("channel %s not found", idOrName)
	}

	if err := t.persist(updated); err != nil {
		return err
	}
	t.list = updated
	return nil
}

// Update replaces the channel with the same channel_id and persists the table.
func (t *Table) Update(ch Channel) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	updated := make([]Channel, len(t.list))
	copy(updated, t.list)
	found := false
	for i, existing := range updated {
		if existing.ChannelID == ch.ChannelID {
			updated[i] = ch
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("channel %s not found", ch.ChannelID)
	}

	if err := t.persist(updated); err != nil {
		return err
	}
	t.list = updated
	return nil
}

// persist writes the document to a temporary file in the same directory and
// renames it over the target, so a crash never leaves a partial table.
func (t *Table) persist(list []Channel) error {
	data, err := yaml.Marshal(document{Channels: list})
	if err != nil {
		return fmt.Errorf("failed to marshal channels: %w", err)
	}

	dir := filepath.Dir(t.path)
	tmp, err := os.CreateTemp(dir, ".channels-*.yml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write channels file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close channels file: %w", err)
	}

	if err := os.Rename(tmpName, t.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace channels file: %w", err)
	}

	return nil
}
