package model

import "time"

// UserSettings holds per-user scalar settings; today it is the focus list.
type UserSettings struct {
	Username   string    `gorm:"primaryKey" json:"username"`
	FocusList  []string  `gorm:"serializer:json" json:"dailyTodos"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// DeviceEntry is one key of the local device storage.
type DeviceEntry struct {
	Name      string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}
