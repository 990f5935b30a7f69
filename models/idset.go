package models

import (
	"encoding/json"
	"sort"
)

// IDSet, tekrarsız kullanıcı ID kümesi (blockedBy, hiddenFor, readBy).
// JSON'da sıralı dizi olarak serialize edilir.
type IDSet map[string]struct{}

// NewIDSet, verilen ID'lerle küme oluşturur; tekrarlar tek elemana iner.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add, ID'yi ekler; küme değiştiyse true döner.
func (s IDSet) Add(id string) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

// Remove, ID'yi çıkarır; küme değiştiyse true döner.
func (s IDSet) Remove(id string) bool {
	if _, ok := s[id]; !ok {
		return false
	}
	delete(s, id)
	return true
}

// Contains, nil küme için de güvenlidir.
func (s IDSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// Slice, elemanları sıralı döner. Boş küme için boş (nil olmayan) slice.
func (s IDSet) Slice() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s IDSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

func (s *IDSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewIDSet(ids...)
	return nil
}
