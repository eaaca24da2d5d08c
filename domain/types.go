package domain

import "time"

type User struct {
	Id           string
	Email        string
	Name         string
	Picture      string
	PasswordHash string
	CreatedAt    time.Time
}

type Room struct {
	Id        string
	Title     string
	HostId    string
	CreatedAt time.Time
}
