package model

import (
	"encoding/json"
	"strings"
)

// PermissionSet is an ordered set of capability strings. Order is the order
// of first insertion; duplicates and blank entries are dropped.
type PermissionSet []string

// NewPermissionSet builds a normalized set from perms.
func NewPermissionSet(perms ...string) PermissionSet {
	out := make(PermissionSet, 0, len(perms))
	seen := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Has reports whether perm is in the set.
func (s PermissionSet) Has(perm string) bool {
	for _, p := range s {
		if p == perm {
			return true
		}
	}
	return false
}

// HasAll reports whether every one of perms is in the set. An empty
// requirement is trivially satisfied.
func (s PermissionSet) HasAll(perms ...string) bool {
	for _, p := range perms {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// Missing returns the subset of perms not present in s, in argument order.
func (s PermissionSet) Missing(perms ...string) []string {
	var out []string
	for _, p := range perms {
		if !s.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// MarshalJSON always emits an array, never null.
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(s))
}

// UnmarshalJSON normalizes on the way in.
func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = NewPermissionSet(raw...)
	return nil
}
