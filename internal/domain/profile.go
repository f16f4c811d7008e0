package domain

import (
	"fmt"
	"time"
)

// ReminderTimeLayout is the 24h "HH:MM" layout of a profile's reminder time.
const ReminderTimeLayout = "15:04"

// DefaultReminderTime is used when a profile has never set a reminder time.
const DefaultReminderTime = "20:00"

// Profile holds the user's notification preferences.
type Profile struct {
	UserID               string `json:"-"`
	NotificationsEnabled bool   `json:"notificationsEnabled"`
	NotificationTime     string `json:"notificationTime"`
}

// ProfileUpdate is a partial profile. Nil fields keep their stored value.
type ProfileUpdate struct {
	NotificationsEnabled *bool   `json:"notificationsEnabled,omitempty"`
	NotificationTime     *string `json:"notificationTime,omitempty"`
}

// Validate checks that a supplied reminder time is a valid "HH:MM" value.
func (u ProfileUpdate) Validate() error {
	if u.NotificationTime != nil {
		t, err := time.Parse(ReminderTimeLayout, *u.NotificationTime)
		if err != nil {
			return fmt.Errorf("notificationTime must be HH:MM: %w", err)
		}
		if t.Format(ReminderTimeLayout) != *u.NotificationTime {
			return fmt.Errorf("notificationTime must be zero-padded HH:MM, got %q", *u.NotificationTime)
		}
	}
	return nil
}

// Merge applies the update on top of p. A nil p starts from defaults.
func (u ProfileUpdate) Merge(userID string, p *Profile) *Profile {
	out := &Profile{UserID: userID, NotificationTime: DefaultReminderTime}
	if p != nil {
		*out = *p
		out.UserID = userID
	}
	if u.NotificationsEnabled != nil {
		out.NotificationsEnabled = *u.NotificationsEnabled
	}
	if u.NotificationTime != nil {
		out.NotificationTime = *u.NotificationTime
	}
	return out
}
