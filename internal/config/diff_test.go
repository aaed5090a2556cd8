package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/ioanna/internal/config"
	"github.com/MrWong99/ioanna/internal/turn"
)

func baseConfig() *config.Config {
	p := turn.DefaultPolicy()
	return &config.Config{
		Server:    config.ServerConfig{ListenAddr: ":8080", LogLevel: config.LogInfo},
		Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "mistral", Options: map[string]any{"a": 1}}},
		Memory:    config.MemoryConfig{PostgresDSN: "postgres://localhost/ioanna", Scoring: &p},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()

	d := config.Diff(baseConfig(), baseConfig())
	if d.LogLevelChanged || d.ScoringChanged || d.RestartRequired {
		t.Errorf("diff = %+v, want no changes", d)
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(*config.Config)
		logLevel    bool
		scoring     bool
		restartWant []string
	}{
		{
			name:     "log level",
			mutate:   func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			logLevel: true,
		},
		{
			name:    "scoring threshold",
			mutate:  func(c *config.Config) { c.Memory.Scoring.Threshold = 0.9 },
			scoring: true,
		},
		{
			name:    "uninformative labels",
			mutate:  func(c *config.Config) { c.Memory.Scoring.Uninformative = []string{"neutral"} },
			scoring: true,
		},
		{
			name:        "listen address",
			mutate:      func(c *config.Config) { c.Server.ListenAddr = ":9090" },
			restartWant: []string{"server"},
		},
		{
			name:        "provider option",
			mutate:      func(c *config.Config) { c.Providers.LLM.Options["a"] = 2 },
			restartWant: []string{"providers"},
		},
		{
			name:        "dsn and scoring",
			mutate:      func(c *config.Config) { c.Memory.PostgresDSN = ""; c.Memory.Scoring.AudioWeight = 0.1 },
			scoring:     true,
			restartWant: []string{"memory"},
		},
		{
			name: "several sections",
			mutate: func(c *config.Config) {
				c.Dialogue.Persona = "Ioanna II"
				c.MCP.Enabled = true
			},
			restartWant: []string{"dialogue", "mcp"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, new := baseConfig(), baseConfig()
			tt.mutate(new)

			d := config.Diff(old, new)
			if d.LogLevelChanged != tt.logLevel {
				t.Errorf("LogLevelChanged = %v, want %v", d.LogLevelChanged, tt.logLevel)
			}
			if d.ScoringChanged != tt.scoring {
				t.Errorf("ScoringChanged = %v, want %v", d.ScoringChanged, tt.scoring)
			}
			if tt.scoring && d.NewScoring.Threshold != new.Memory.Scoring.Threshold {
				t.Errorf("NewScoring = %+v, want %+v", d.NewScoring, *new.Memory.Scoring)
			}
			if !slices.Equal(d.RestartSections, tt.restartWant) {
				t.Errorf("RestartSections = %v, want %v", d.RestartSections, tt.restartWant)
			}
			if d.RestartRequired != (len(tt.restartWant) > 0) {
				t.Errorf("RestartRequired = %v", d.RestartRequired)
			}
		})
	}
}

func TestDiff_NilScoringMeansDefault(t *testing.T) {
	t.Parallel()

	old, new := baseConfig(), baseConfig()
	new.Memory.Scoring = nil

	d := config.Diff(old, new)
	if !d.ScoringChanged {
		t.Fatal("ScoringChanged = false, want true")
	}
	if d.NewScoring.Threshold != turn.DefaultPolicy().Threshold {
		t.Errorf("NewScoring = %+v, want default policy", d.NewScoring)
	}
}
