package models

import "time"

// UnreadSnapshot is the unread aggregate at one point in time.
type UnreadSnapshot struct {
	Total      int            `json:"total"`
	PerChannel map[string]int `json:"per_channel"`
}

const SoundAlarm = "alarm"

// DefaultVibrationPattern is off/on durations in milliseconds.
var DefaultVibrationPattern = []int64{0, 500, 250, 500, 250, 500}

// Reminder is one audible/haptic re-alert emitted by the reminder engine.
type Reminder struct {
	UnreadCount      int            `json:"unread_count"`
	PerChannel       map[string]int `json:"per_channel"`
	Sound            string         `json:"sound"`
	Vibrate          bool           `json:"vibrate"`
	VibrationPattern []int64        `json:"vibration_pattern,omitempty"`
	IssuedAt         time.Time      `json:"issued_at"`
}
