// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const (
	MaxUserIDLen      = 64
	MaxDisplayNameLen = 36
)

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrUserIDEmpty        = errors.New("user id empty")
	ErrUserIDTooLong      = errors.New("user id too long")
)

// UserID is the stable domain identity of a participant.
type UserID string

// PeerID is the volatile transport identity (socket id) of a participant.
type PeerID string

func (id UserID) String() string { return string(id) }
func (id PeerID) String() string { return string(id) }

// Profile holds the asynchronously hydrated presentation fields of a user.
type Profile struct {
	Avatar      string `json:"avatar"`
	AvatarColor string `json:"avatarColor"`
	Banner      string `json:"banner"`
}

// LocalUser is who this client joins rooms as.
type LocalUser struct {
	ID          UserID
	Name        string
	Avatar      string
	AvatarColor string
}

func NewLocalUser(id, name string) (*LocalUser, error) {
	if id == "" {
		return nil, ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return nil, ErrUserIDTooLong
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = id
	}
	if len(name) > MaxDisplayNameLen {
		return nil, ErrDisplayNameTooLong
	}
	return &LocalUser{ID: UserID(id), Name: name}, nil
}
