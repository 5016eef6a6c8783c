package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestNewLocalUser(t *testing.T) {
	u, err := NewLocalUser("u-1", "  ")
	if err != nil {
		t.Fatal(err)
	}
	if u.Name != "u-1" {
		t.Errorf("blank name should fall back to id, got %q", u.Name)
	}

	if _, err := NewLocalUser("", "bob"); !errors.Is(err, ErrUserIDEmpty) {
		t.Errorf("err = %v, want ErrUserIDEmpty", err)
	}
	if _, err := NewLocalUser("u-2", strings.Repeat("x", MaxDisplayNameLen+1)); !errors.Is(err, ErrDisplayNameTooLong) {
		t.Errorf("err = %v, want ErrDisplayNameTooLong", err)
	}
}

func TestMergeProfileKeepsAnnouncedFields(t *testing.T) {
	p := NewPeer(PeerJoined{PeerID: "s1", UserID: "u1", Name: "Ann", AvatarColor: "#ff0000"})
	p.MergeProfile(Profile{Avatar: "a.png", Banner: "b.png"})
	if p.Avatar != "a.png" || p.Banner != "b.png" || p.AvatarColor != "#ff0000" {
		t.Fatalf("unexpected merge result: %+v", p)
	}
}
