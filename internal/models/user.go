package models

import (
	"fmt"
	"time"
)

const (
	DefaultBeepIntervalSeconds = 60
	DefaultVibrationEnabled    = true
)

// BeepIntervals lists the reminder intervals a user may pick, in seconds.
var BeepIntervals = []int{10, 30, 60, 120, 300, 600}

// Settings is the mutable reminder configuration read on every engine cycle.
type Settings struct {
	BeepIntervalSeconds int  `json:"beep_interval_seconds"`
	VibrationEnabled    bool `json:"vibration_enabled"`
}

func DefaultSettings() Settings {
	return Settings{
		BeepIntervalSeconds: DefaultBeepIntervalSeconds,
		VibrationEnabled:    DefaultVibrationEnabled,
	}
}

// Interval returns the beep interval as a duration.
func (s Settings) Interval() time.Duration {
	return time.Duration(s.BeepIntervalSeconds) * time.Second
}

// Validate checks the beep interval against BeepIntervals.
func (s Settings) Validate() error {
	for _, allowed := range BeepIntervals {
		if s.BeepIntervalSeconds == allowed {
			return nil
		}
	}
	return fmt.Errorf("beep interval %ds is not one of %v", s.BeepIntervalSeconds, BeepIntervals)
}

// User is the single signed-in user on this device.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	SignedInAt  time.Time `json:"signed_in_at"`
	Settings    Settings  `json:"settings"`
}

// SettingsUpdate carries a partial settings change from the UI.
type SettingsUpdate struct {
	BeepIntervalSeconds *int  `json:"beep_interval_seconds,omitempty"`
	VibrationEnabled    *bool `json:"vibration_enabled,omitempty"`
}

// Apply returns s with the non-nil fields of u applied.
func (u SettingsUpdate) Apply(s Settings) Settings {
	if u.BeepIntervalSeconds != nil {
		s.BeepIntervalSeconds = *u.BeepIntervalSeconds
	}
	if u.VibrationEnabled != nil {
		s.VibrationEnabled = *u.VibrationEnabled
	}
	return s
}
