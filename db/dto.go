package db

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const (
	reminderStatePending int16 = iota
	reminderStateDead
)

// User is a row of the users table.
type User struct {
	ID        int
	ChatID    int64
	Username  string
	Firstname string
	Role      string
}

// Ref is a reference-data entry (category, subject or teacher).
type Ref struct {
	ID   int
	Name string
}

type Video struct {
	ID     int
	Name   string
	FileID string // Telegram file ID of the uploaded media
}

type Reminder struct {
	ID       int
	Username string
	RemindAt time.Time
	Text     string
	Attempts int16
}

// UsersInfo aggregates per-role user counts.
type UsersInfo struct {
	Total      int
	Admins     int
	Users      int
	AdminNames []string
}
