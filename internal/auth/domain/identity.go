package domain

import "strings"

// Metadata is the provider-supplied key/value bag attached to an identity.
// Only role and name are read by this service; everything else is carried
// through untouched.
type Metadata map[string]any

const (
	MetadataKeyRole = "role"
	MetadataKeyName = "name"
)

// String returns the trimmed string stored at key. Non-string values and
// blank strings report false.
func (m Metadata) String(key string) (string, bool) {
	v, ok := m[key].(string)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// Role returns the metadata role when it names a known role.
func (m Metadata) Role() (Role, bool) {
	s, ok := m.String(MetadataKeyRole)
	if !ok {
		return "", false
	}
	r := Role(strings.ToLower(s))
	return r, r.Valid()
}

// Name returns the metadata display name.
func (m Metadata) Name() (string, bool) {
	return m.String(MetadataKeyName)
}

// Clone returns a shallow copy. Nil stays nil.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Identity is the provider's view of an authenticated user.
type Identity struct {
	ID       string
	Email    string // verified email, may be empty
	Metadata Metadata
}

// HasEmail reports whether the identity carries a usable email.
func (i Identity) HasEmail() bool {
	return strings.TrimSpace(i.Email) != ""
}
