package channels

import (
	"os"
	"path/filepath"
	"testing"
)

func tablePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "channels.yml")
}

func TestNewTableMissingFile(t *testing.T) {
	table, err := NewTable(tablePath(t))
	if err != nil {
		t.Fatalf("Expected a missing file to yield an empty table, got %v", err)
	}
	if table.Len() != 0 {
		t.Errorf("Expected 0 channels, got %d", table.Len())
	}
}

func TestNewTableParsesDocument(t *testing.T) {
	path := tablePath(t)
	doc := `channels:
  - name: gaming
    channel_id: UC-gaming
    destination_account: gaming_account
    proxy:
      host: 10.0.0.1
      port: 8080
      username: user
      password: pass
  - name: music
    channel_id: UC-music
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := NewTable(path)
	if err != nil {
		t.Fatalf("Expected document to parse, got %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("Expected 2 channels, got %d", table.Len())
	}

	ch, exact := table.Resolve("UC-gaming")
	if !exact {
		t.Error("Expected an exact match for UC-gaming")
	}
	if ch.DestinationAccount != "gaming_account" {
		t.Errorf("Expected account 'gaming_account', got '%s'", ch.DestinationAccount)
	}
	if ch.Proxy == nil || ch.Proxy.Host != "10.0.0.1" || ch.Proxy.Port != 8080 {
		t.Errorf("Expected proxy 10.0.0.1:8080, got %+v", ch.Proxy)
	}

	// Missing destination account defaults
	ch, _ = table.Resolve("UC-music")
	if ch.DestinationAccount != "default" {
		t.Errorf("Expected default account, got '%s'", ch.DestinationAccount)
	}
}

func TestNewTableRejectsMissingChannelID(t *testing.T) {
	path := tablePath(t)
	doc := `channels:
  - name: broken
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewTable(path); err == nil {
		t.Error("Expected an error for a channel without channel_id")
	}
}

func TestResolveFallsBackToFirstChannel(t *testing.T) {
	table, _ := NewTable(tablePath(t))
	if err := table.Add(Channel{Name: "first", ChannelID: "UC-first"}); err != nil {
		t.Fatal(err)
	}
	if err := table.Add(Channel{Name: "second", ChannelID: "UC-second"}); err != nil {
		t.Fatal(err)
	}

	ch, exact := table.Resolve("UC-unknown")
	if exact {
		t.Error("Expected an inexact match for an unknown channel")
	}
	if ch.ChannelID != "UC-first" {
		t.Errorf("Expected fallback to the first channel, got '%s'", ch.ChannelID)
	}
}

func TestResolveEmptyTable(t *testing.T) {
	table, _ := NewTable(tablePath(t))

	ch, exact := table.Resolve("UC-any")
	if exact {
		t.Error("Expected no match on an empty table")
	}
	if ch.ChannelID != "" {
		t.Errorf("Expected a zero channel, got '%s'", ch.ChannelID)
	}
}

func TestAddPersistsAndSurvivesReload(t *testing.T) {
	path := tablePath(t)
	table, _ := NewTable(path)

	if err := table.Add(Channel{Name: "gaming", ChannelID: "UC-gaming", DestinationAccount: "acct"}); err != nil {
		t.Fatalf("Expected add to succeed, got %v", err)
	}

	// Duplicate channel_id is rejected
	if err := table.Add(Channel{Name: "other", ChannelID: "UC-gaming"}); err == nil {
		t.Error("Expected a duplicate channel_id to be rejected")
	}

	reloaded, err := NewTable(path)
	if err != nil {
		t.Fatalf("Expected persisted table to reload, got %v", err)
	}
	if reloaded.Len() != 1 {
		t.Fatalf("Expected 1 channel after reload, got %d", reloaded.Len())
	}
	ch, exact := reloaded.Resolve("UC-gaming")
	if !exact || ch.DestinationAccount != "acct" {
		t.Errorf("Expected persisted channel to round-trip, got %+v (exact=%v)", ch, exact)
	}
}

func TestRemoveByIDOrName(t *testing.T) {
	path := tablePath(t)
	table, _ := NewTable(path)
	table.Add(Channel{Name: "gaming", ChannelID: "UC-gaming"})
	table.Add(Channel{Name: "music", ChannelID: "UC-music"})

	if err := table.Remove("UC-gaming"); err != nil {
		t.Fatalf("Expected remove by id to succeed, got %v", err)
	}
	if err := table.Remove("music"); err != nil {
		t.Fatalf("Expected remove by name to succeed, got %v", err)
	}
	if table.Len() != 0 {
		t.Errorf("Expected empty table, got %d channels", table.Len())
	}

	if err := table.Remove("UC-gaming"); err == nil {
		t.Error("Expected removing an absent channel to fail")
	}
}

func TestUpdate(t *testing.T) {
	table, _ := NewTable(tablePath(t))
	table.Add(Channel{Name: "gaming", ChannelID: "UC-gaming", DestinationAccount: "old"})

	if err := table.Update(Channel{Name: "gaming", ChannelID: "UC-gaming", DestinationAccount: "new"}); err != nil {
		t.Fatalf("Expected update to succeed, got %v", err)
	}
	ch, _ := table.Resolve("UC-gaming")
	if ch.DestinationAccount != "new" {
		t.Errorf("Expected updated account 'new', got '%s'", ch.DestinationAccount)
	}

	if err := table.Update(Channel{ChannelID: "UC-missing"}); err == nil {
		t.Error("Expected updating an absent channel to fail")
	}
}

func TestParseSpec(t *testing.T) {
	ch, err := ParseSpec("gaming,UC-gaming,acct")
	if err != nil {
		t.Fatalf("Expected spec to parse, got %v", err)
	}
	if ch.Name != "gaming" || ch.ChannelID != "UC-gaming" || ch.DestinationAccount != "acct" {
		t.Errorf("Unexpected channel: %+v", ch)
	}

	ch, err = ParseSpec(" music , UC-music ")
	if err != nil {
		t.Fatalf("Expected spec to parse, got %v", err)
	}
	if ch.Name != "music" || ch.ChannelID != "UC-music" {
		t.Errorf("Expected fields to be trimmed, got %+v", ch)
	}
	if ch.DestinationAccount != "default" {
		t.Errorf("Expected default account, got '%s'", ch.DestinationAccount)
	}

	for _, bad := range []string{"", "only-name", ",UC-x", "name,"} {
		if _, err := ParseSpec(bad); err == nil {
			t.Errorf("Expected spec %q to be rejected", bad)
		}
	}
}
