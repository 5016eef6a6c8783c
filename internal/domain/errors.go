package domain

import "errors"

var (
	// ErrPermissionDenied is returned when local media acquisition is refused.
	ErrPermissionDenied = errors.New("media permission denied")
	// ErrPlaybackBlocked means a sink could not start without a user gesture.
	ErrPlaybackBlocked = errors.New("playback blocked, needs user gesture")
	// ErrSignalingUnavailable wraps connect and join failures.
	ErrSignalingUnavailable = errors.New("signaling unavailable")
	ErrClassificationAmbiguous = errors.New("track media type missing")
	ErrUnclassifiable          = errors.New("track kind and media type do not match")
	ErrStaleReference          = errors.New("stale reference")
	ErrInvalidState            = errors.New("invalid call state")
	ErrNoLiveSource            = errors.New("no live microphone source")
	ErrUnknownPeer             = errors.New("unknown peer")
	ErrBadPayload              = errors.New("bad payload")
)
