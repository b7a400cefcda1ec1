package cfg

import (
	"testing"
)

func TestGetVersion(t *testing.T) {
	// Test default version
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}

	version := GetVersion()
	if version != "dev" && version != "unknown" {
		// This is fine, version could be set at build time
		t.Logf("Version: %s", version)
	}
}

func TestConfigFields(t *testing.T) {
	cfg := &Cfg{
		Port:            "8080",
		BaseUrl:         "https://relay.example.com",
		APIAccessKey:    "test-key",
		HubUrl:          "https://pubsubhubbub.appspot.com/subscribe",
		LeaseSeconds:    86400,
		PollInterval:    30,
		PollLimit:       5,
		WorkerCount:     5,
		AutoUpload:      true,
		DownloadDir:     "./videos",
		DataDir:         "./data",
		ChannelsFile:    "./channels.yml",
		MinDuration:     3,
		MaxDuration:     120,
		ExtendThreshold: 60,
		ExtendTarget:    63,
		PartDuration:    113,
		PartCount:       3,
		CacheTTL:        300,
		FastCacheTTL:    15,
		UserAgent:       "Test Agent",
		Version:         "test-version",
		Debug:           true,
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected port '8080', got '%s'", cfg.Port)
	}
	if cfg.BaseUrl != "https://relay.example.com" {
		t.Errorf("Expected base URL 'https://relay.example.com', got '%s'", cfg.BaseUrl)
	}
	if cfg.APIAccessKey != "test-key" {
		t.Errorf("Expected API key 'test-key', got '%s'", cfg.APIAccessKey)
	}
	if cfg.LeaseSeconds != 86400 {
		t.Errorf("Expected lease seconds 86400, got %d", cfg.LeaseSeconds)
	}
	if cfg.PollInterval != 30 {
		t.Errorf("Expected poll interval 30, got %d", cfg.PollInterval)
	}
	if cfg.WorkerCount != 5 {
		t.Errorf("Expected worker count 5, got %d", cfg.WorkerCount)
	}
	if !cfg.AutoUpload {
		t.Error("Expected auto upload to be enabled")
	}
	if cfg.MaxDuration != 120 {
		t.Errorf("Expected max duration 120, got %v", cfg.MaxDuration)
	}
	if cfg.ExtendTarget != 63 {
		t.Errorf("Expected extend target 63, got %v", cfg.ExtendTarget)
	}
	if cfg.PartCount != 3 {
		t.Errorf("Expected part count 3, got %d", cfg.PartCount)
	}
	if cfg.Version != "test-version" {
		t.Errorf("Expected version 'test-version', got '%s'", cfg.Version)
	}
	if !cfg.Debug {
		t.Error("Expected debug to be enabled")
	}
}

func TestResolvePollLimit(t *testing.T) {
	tests := []struct {
		limit    int
		fastPoll bool
		expected int
	}{
		{0, false, 5},
		{0, true, 3},
		{5, true, 5}, // an explicit value is honored even in fast-poll mode
		{8, false, 8},
		{1, true, 1},
	}

	for _, test := range tests {
		if got := resolvePollLimit(test.limit, test.fastPoll); got != test.expected {
			t.Errorf("resolvePollLimit(%d, %v): expected %d, got %d",
				test.limit, test.fastPoll, test.expected, got)
		}
	}
}

func TestListCacheTTL(t *testing.T) {
	cfg := &Cfg{CacheTTL: 300, FastCacheTTL: 15}

	if got := cfg.ListCacheTTL(); got != 300 {
		t.Errorf("Expected normal TTL 300, got %d", got)
	}

	cfg.FastPoll = true
	if got := cfg.ListCacheTTL(); got != 15 {
		t.Errorf("Expected fast-poll TTL 15, got %d", got)
	}
}

func TestGetPanicsWhenUnloaded(t *testing.T) {
	prev := globalCfg
	defer Set(prev)
	Set(nil)

	defer func() {
		if recover() == nil {
			t.Error("Expected Get to panic before Load")
		}
	}()
	Get()
}
