package app

import "fmt"

// MediaTypePolicy decides what happens to a track event without a mediaType tag.
type MediaTypePolicy int

const (
	// InferFromPeerState falls back to the owner's recorded video flag.
	InferFromPeerState MediaTypePolicy = iota
	// RejectUntagged treats a missing tag as a hard classification error.
	RejectUntagged
)

func ParseMediaTypePolicy(s string) (MediaTypePolicy, error) {
	switch s {
	case "", "infer":
		return InferFromPeerState, nil
	case "strict":
		return RejectUntagged, nil
	}
	return 0, fmt.Errorf("unknown media type policy %q", s)
}

func (p MediaTypePolicy) String() string {
	if p == RejectUntagged {
		return "strict"
	}
	return "infer"
}
