package model

import "sort"

// UserSet is a set of Slack user (or user group) IDs
type UserSet map[string]struct{}

func NewUserSet(ids ...string) UserSet {
	s := make(UserSet, len(ids))
	s.Add(ids...)
	return s
}

func (s UserSet) Add(ids ...string) {
	for _, id := range ids {
		if id == "" {
			continue
		}
		s[id] = struct{}{}
	}
}

func (s UserSet) Remove(id string) {
	delete(s, id)
}

func (s UserSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s UserSet) Len() int {
	return len(s)
}

// Union adds every member of other to s
func (s UserSet) Union(other UserSet) {
	for id := range other {
		s[id] = struct{}{}
	}
}

// Difference returns members of s that are not in other
func (s UserSet) Difference(other UserSet) UserSet {
	diff := NewUserSet()
	for id := range s {
		if !other.Has(id) {
			diff[id] = struct{}{}
		}
	}
	return diff
}

// Sorted returns the members in ascending order
func (s UserSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
