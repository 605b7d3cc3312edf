package parser

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// EntryMap is an insertion-ordered mapping from entry name to a non-empty,
// ordered list of entries. A list longer than one is an overload set.
// The zero value is ready to use.
type EntryMap struct {
	keys    []string
	entries map[string][]Entry
}

func NewEntryMap() *EntryMap {
	return &EntryMap{entries: make(map[string][]Entry)}
}

func (m *EntryMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the names in insertion order.
func (m *EntryMap) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

func (m *EntryMap) Has(name string) bool {
	if m == nil {
		return false
	}
	_, ok := m.entries[name]
	return ok
}

// Get returns the entries stored under name, or nil.
func (m *EntryMap) Get(name string) []Entry {
	if m == nil {
		return nil
	}
	return m.entries[name]
}

// First returns the primary entry stored under name.
func (m *EntryMap) First(name string) (Entry, bool) {
	es := m.Get(name)
	if len(es) == 0 {
		return Entry{}, false
	}
	return es[0], true
}

// Add appends e to the overload list under name, creating it at the end of
// the key order when absent.
func (m *EntryMap) Add(name string, e Entry) {
	if m.entries == nil {
		m.entries = make(map[string][]Entry)
	}
	if _, ok := m.entries[name]; !ok {
		m.keys = append(m.keys, name)
	}
	m.entries[name] = append(m.entries[name], e)
}

// Prepend inserts e as a new first key. It is a no-op if name already exists.
func (m *EntryMap) Prepend(name string, e Entry) {
	if m.Has(name) {
		return
	}
	if m.entries == nil {
		m.entries = make(map[string][]Entry)
	}
	m.keys = append([]string{name}, m.keys...)
	m.entries[name] = []Entry{e}
}

// Set replaces the entries under name, keeping its position. Setting an
// empty list deletes the name.
func (m *EntryMap) Set(name string, es ...Entry) {
	if len(es) == 0 {
		m.Delete(name)
		return
	}
	if m.entries == nil {
		m.entries = make(map[string][]Entry)
	}
	if _, ok := m.entries[name]; !ok {
		m.keys = append(m.keys, name)
	}
	m.entries[name] = append([]Entry(nil), es...)
}

func (m *EntryMap) Delete(name string) {
	if !m.Has(name) {
		return
	}
	delete(m.entries, name)
	for i, k := range m.keys {
		if k == name {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Each calls fn for every name in insertion order.
func (m *EntryMap) Each(fn func(name string, es []Entry)) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		fn(k, m.entries[k])
	}
}

func (m *EntryMap) Clone() *EntryMap {
	if m == nil {
		return nil
	}
	c := NewEntryMap()
	for _, k := range m.keys {
		for _, e := range m.entries[k] {
			c.Add(k, e.Clone())
		}
	}
	return c
}

func (m *EntryMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		var val []byte
		if es := m.entries[k]; len(es) == 1 {
			val, err = json.Marshal(es[0])
		} else {
			val, err = json.Marshal(es)
		}
		if err != nil {
			return nil, fmt.Errorf("encoding entry %s: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

func (m *EntryMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("entries: expected object, got %v", tok)
	}

	m.keys = nil
	m.entries = make(map[string][]Entry)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("entries: expected key, got %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("entries: decoding %s: %w", name, err)
		}

		raw = bytes.TrimSpace(raw)
		if len(raw) > 0 && raw[0] == '[' {
			var es []Entry
			if err := json.Unmarshal(raw, &es); err != nil {
				return fmt.Errorf("entries: decoding %s: %w", name, err)
			}
			if len(es) == 0 {
				return fmt.Errorf("entries: %s has an empty overload list", name)
			}
			for _, e := range es {
				m.Add(name, e)
			}
			continue
		}

		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return fmt.Errorf("entries: decoding %s: %w", name, err)
		}
		m.Add(name, e)
	}

	_, err = dec.Token()
	return err
}

func (m *EntryMap) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range m.keys {
		val := &yaml.Node{}

		var err error
		if es := m.entries[k]; len(es) == 1 {
			err = val.Encode(es[0])
		} else {
			err = val.Encode(es)
		}
		if err != nil {
			return nil, fmt.Errorf("encoding entry %s: %w", k, err)
		}

		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, val)
	}

	return node, nil
}

func (m *EntryMap) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("entries: line %d: expected mapping", value.Line)
	}

	m.keys = nil
	m.entries = make(map[string][]Entry)

	for i := 0; i+1 < len(value.Content); i += 2 {
		name := value.Content[i].Value
		val := value.Content[i+1]

		if val.Kind == yaml.SequenceNode {
			var es []Entry
			if err := val.Decode(&es); err != nil {
				return fmt.Errorf("entries: decoding %s: %w", name, err)
			}
			if len(es) == 0 {
				return fmt.Errorf("entries: %s has an empty overload list", name)
			}
			for _, e := range es {
				m.Add(name, e)
			}
			continue
		}

		var e Entry
		if err := val.Decode(&e); err != nil {
			return fmt.Errorf("entries: decoding %s: %w", name, err)
		}
		m.Add(name, e)
	}

	return nil
}
