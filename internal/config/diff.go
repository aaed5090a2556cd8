package config

import (
	"reflect"
	"slices"

	"github.com/MrWong99/ioanna/internal/turn"
)

// ConfigDiff describes what changed between two configs.
// Only the log level and the scoring policy are applied without a restart;
// changes to any other section are listed in RestartSections.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	ScoringChanged bool
	NewScoring     turn.Policy

	// RestartRequired is true when a section that is only read at startup
	// changed. RestartSections names those sections.
	RestartRequired bool
	RestartSections []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !policyEqual(old.Memory.Scoring, new.Memory.Scoring) {
		d.ScoringChanged = true
		if new.Memory.Scoring != nil {
			d.NewScoring = *new.Memory.Scoring
		} else {
			d.NewScoring = turn.DefaultPolicy()
		}
	}

	oldMem, newMem := old.Memory, new.Memory
	oldMem.Scoring, newMem.Scoring = nil, nil
	oldSrv, newSrv := old.Server, new.Server
	oldSrv.LogLevel, newSrv.LogLevel = "", ""

	for _, s := range []struct {
		name     string
		old, new any
	}{
		{"server", oldSrv, newSrv},
		{"providers", old.Providers, new.Providers},
		{"capture", old.Capture, new.Capture},
		{"memory", oldMem, newMem},
		{"dialogue", old.Dialogue, new.Dialogue},
		{"identity", old.Identity, new.Identity},
		{"events", old.Events, new.Events},
		{"mcp", old.MCP, new.MCP},
	} {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartSections = append(d.RestartSections, s.name)
		}
	}
	d.RestartRequired = len(d.RestartSections) > 0
	return d
}

func policyEqual(a, b *turn.Policy) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.SubjectivityWeight == b.SubjectivityWeight &&
		a.AudioWeight == b.AudioWeight &&
		a.FacialWeight == b.FacialWeight &&
		a.Threshold == b.Threshold &&
		slices.Equal(a.Uninformative, b.Uninformative)
}
