package config

import "time"

const (
	defaultWorkers      = 16
	defaultIdleCloseMs  = 30000
	defaultEventHistory = 500
	defaultOutputBuffer = 1000
)

// Settings tunes the coordinator. It is injected at construction.
type Settings struct {
	Timeouts     Timeouts `yaml:"timeouts,omitempty" json:"timeouts"`
	Workers      int      `yaml:"workers,omitempty" json:"workers"`
	IdleCloseMs  int      `yaml:"idle_close_ms,omitempty" json:"idle_close_ms"`
	EventHistory int      `yaml:"event_history,omitempty" json:"event_history"`
	OutputBuffer int      `yaml:"output_buffer,omitempty" json:"output_buffer"`
}

func DefaultSettings() Settings {
	return Settings{}.WithDefaults()
}

func (s Settings) WithDefaults() Settings {
	s.Timeouts = s.Timeouts.WithDefaults()
	if s.Workers <= 0 {
		s.Workers = defaultWorkers
	}
	if s.IdleCloseMs <= 0 {
		s.IdleCloseMs = defaultIdleCloseMs
	}
	if s.EventHistory <= 0 {
		s.EventHistory = defaultEventHistory
	}
	if s.OutputBuffer <= 0 {
		s.OutputBuffer = defaultOutputBuffer
	}
	return s
}

// IdleClose is how long an unreferenced connection stays open.
func (s Settings) IdleClose() time.Duration {
	return time.Duration(s.IdleCloseMs) * time.Millisecond
}
