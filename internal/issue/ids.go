package issue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"
)

// XID provides globally unique, sortable identifiers.
// Format: 20 characters, base32-hex encoded, 12 bytes.
// Sortable by creation time, no coordination required, URL-safe.

// FindingID identifies one raw scanner finding and the issue derived from it.
type FindingID struct {
	id xid.ID
}

// NewFindingID generates a new finding ID.
func NewFindingID() FindingID {
	return FindingID{id: xid.New()}
}

// ParseFindingID parses a finding ID from string.
func ParseFindingID(s string) (FindingID, error) {
	id, err := xid.FromString(s)
	if err != nil {
		return FindingID{}, fmt.Errorf("invalid finding ID %q: %w", s, err)
	}
	return FindingID{id: id}, nil
}

// String returns the string representation.
func (f FindingID) String() string {
	return f.id.String()
}

// Short returns the first 8 characters for human-readable contexts.
func (f FindingID) Short() string {
	s := f.id.String()
	if len(s) >= 8 {
		return s[:8]
	}
	return s
}

// Time returns the timestamp embedded in the ID.
func (f FindingID) Time() time.Time {
	return f.id.Time()
}

// IsZero returns true if this is the zero value.
func (f FindingID) IsZero() bool {
	return f.id.IsNil()
}

// MarshalJSON implements json.Marshaler.
func (f FindingID) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.id.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FindingID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := xid.FromString(s)
	if err != nil {
		return err
	}
	f.id = id
	return nil
}

// Compare returns -1, 0, or 1 comparing two IDs.
func (f FindingID) Compare(other FindingID) int {
	return f.id.Compare(other.id)
}

// PackageID identifies one built fix package.
type PackageID struct {
	id xid.ID
}

// NewPackageID generates a new package ID.
func NewPackageID() PackageID {
	return PackageID{id: xid.New()}
}

// ParsePackageID parses a package ID from string.
func ParsePackageID(s string) (PackageID, error) {
	id, err := xid.FromString(s)
	if err != nil {
		return PackageID{}, fmt.Errorf("invalid package ID %q: %w", s, err)
	}
	return PackageID{id: id}, nil
}

// String returns the string representation.
func (p PackageID) String() string {
	return p.id.String()
}

// IsZero returns true if this is the zero value.
func (p PackageID) IsZero() bool {
	return p.id.IsNil()
}

// MarshalJSON implements json.Marshaler.
func (p PackageID) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.id.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *PackageID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := xid.FromString(s)
	if err != nil {
		return err
	}
	p.id = id
	return nil
}

// SessionID identifies one operator workflow session.
type SessionID struct {
	id xid.ID
}

// NewSessionID generates a new session ID.
func NewSessionID() SessionID {
	return SessionID{id: xid.New()}
}

// ParseSessionID parses a session ID from string.
func ParseSessionID(s string) (SessionID, error) {
	id, err := xid.FromString(s)
	if err != nil {
		return SessionID{}, fmt.Errorf("invalid session ID %q: %w", s, err)
	}
	return SessionID{id: id}, nil
}

// String returns the string representation.
func (s SessionID) String() string {
	return s.id.String()
}

// IsZero returns true if this is the zero value.
func (s SessionID) IsZero() bool {
	return s.id.IsNil()
}

// MarshalJSON implements json.Marshaler.
func (s SessionID) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.id.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *SessionID) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	id, err := xid.FromString(str)
	if err != nil {
		return err
	}
	s.id = id
	return nil
}
