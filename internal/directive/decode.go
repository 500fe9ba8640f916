package directive

import (
	"errors"
	"fmt"
	"strings"
)

const (
	directToken  = "DIRECT"
	segmentSplit = ";"
)

// Decoder errors.
var (
	ErrMalformedEntry = errors.New("malformed proxy entry")
)

// Failure reasons reported by MalformedEntryError.
const (
	ReasonDirectTrailing = "DIRECT with trailing content"
	ReasonNoColon        = "No colon in entry"
	ReasonNoType         = "No type matched"
)

// MalformedEntryError reports the segment that stopped decoding.
type MalformedEntryError struct {
	Segment string
	Reason  string
}

func (e *MalformedEntryError) Error() string {
	return fmt.Sprintf("%s: %s (%q)", ErrMalformedEntry, e.Reason, e.Segment)
}

// Is makes errors.Is(err, ErrMalformedEntry) hold.
func (e *MalformedEntryError) Is(target error) bool {
	return target == ErrMalformedEntry
}

// tokens is ordered longest first so that a token which is a prefix of
// another (SOCKS of SOCKS4/SOCKS5, HTTP of HTTPS) only wins when the longer
// one does not match.
var tokens = []Type{
	TypeSOCKS4,
	TypeSOCKS5,
	TypeProxy,
	TypeHTTPS,
	TypeSOCKS,
	TypeHTTP,
}

// Decode parses a proxy specification such as "PROXY 1.2.3.4:80; DIRECT".
// The first malformed segment aborts decoding and no entries are returned.
func Decode(spec string) ([]Entry, error) {
	segments := strings.Split(spec, segmentSplit)
	entries := make([]Entry, 0, len(segments))

	for _, seg := range segments {
		entry, err := decodeSegment(strings.TrimSpace(seg))
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

func decodeSegment(seg string) (Entry, error) {
	if rest, ok := strings.CutPrefix(seg, directToken); ok {
		if rest != "" {
			return Entry{}, &MalformedEntryError{Segment: seg, Reason: ReasonDirectTrailing}
		}
		return Direct(), nil
	}

	t, rest, ok := matchType(seg)
	if !ok {
		return Entry{}, &MalformedEntryError{Segment: seg, Reason: ReasonNoType}
	}

	host, port, found := strings.Cut(strings.TrimSpace(rest), ":")
	if !found {
		return Entry{}, &MalformedEntryError{Segment: seg, Reason: ReasonNoColon}
	}

	return Proxied(t, host, port), nil
}

func matchType(seg string) (Type, string, bool) {
	for _, t := range tokens {
		if rest, ok := strings.CutPrefix(seg, t.String()); ok {
			return t, rest, true
		}
	}
	return 0, "", false
}
