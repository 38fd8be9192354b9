// Package alias implements the two MQTT 5.0 topic-alias maps of spec §4.4:
// a send-side map with LRU eviction bounded by the peer's advertised Topic
// Alias Maximum, and a receive-side map with no eviction policy of its own
// (the producer dictates replacement by resending the same alias with a new
// topic).
package alias

import "container/list"

// SendMap is the sender's topic<->alias bidirectional map.
type SendMap struct {
	max   uint16
	byTop map[string]*list.Element
	byAls map[uint16]*list.Element
	order *list.List // front = most recently used
}

type sendEntry struct {
	topic string
	alias uint16
}

// NewSendMap creates a send-side map. max is fixed once, from the peer's
// CONNACK TopicAliasMaximum property; max == 0 means the peer does not
// support topic aliasing and the map never admits entries.
func NewSendMap(max uint16) *SendMap {
	return &SendMap{
		max:   max,
		byTop: make(map[string]*list.Element),
		byAls: make(map[uint16]*list.Element),
		order: list.New(),
	}
}

// Max returns the peer-advertised capacity.
func (m *SendMap) Max() uint16 { return m.max }

// Len returns the number of live mappings.
func (m *SendMap) Len() int { return len(m.byTop) }

// FindAlias returns the current alias for topic, or ok=false.
// A hit marks the entry most-recently-used.
func (m *SendMap) FindAlias(topic string) (alias uint16, ok bool) {
	el, found := m.byTop[topic]
	if !found {
		return 0, false
	}
	m.order.MoveToFront(el)
	return el.Value.(*sendEntry).alias, true
}

// InsertOrUpdate inserts a new topic/alias mapping (evicting any previous
// holder of that alias or that topic) and marks it most-recently-used.
func (m *SendMap) InsertOrUpdate(topic string, alias uint16) {
	if el, ok := m.byTop[topic]; ok {
		m.removeElement(el)
	}
	if el, ok := m.byAls[alias]; ok {
		m.removeElement(el)
	}
	entry := &sendEntry{topic: topic, alias: alias}
	el := m.order.PushFront(entry)
	m.byTop[topic] = el
	m.byAls[alias] = el
}

// TopicForAlias returns the topic currently registered under alias, used to
// validate a caller-supplied topic_alias property against an empty topic
// name (spec §4.4: "if the topic is empty the alias must already be known").
func (m *SendMap) TopicForAlias(a uint16) (topic string, ok bool) {
	el, found := m.byAls[a]
	if !found {
		return "", false
	}
	return el.Value.(*sendEntry).topic, true
}

// GetLRUAlias returns the least-recently-used alias, used by auto-mapping
// to pick a victim when the map is at capacity. ok is false when empty.
func (m *SendMap) GetLRUAlias() (alias uint16, ok bool) {
	back := m.order.Back()
	if back == nil {
		return 0, false
	}
	return back.Value.(*sendEntry).alias, true
}

// Clear resets the map.
func (m *SendMap) Clear() {
	m.byTop = make(map[string]*list.Element)
	m.byAls = make(map[uint16]*list.Element)
	m.order = list.New()
}

func (m *SendMap) removeElement(el *list.Element) {
	entry := el.Value.(*sendEntry)
	delete(m.byTop, entry.topic)
	delete(m.byAls, entry.alias)
	m.order.Remove(el)
}

// RecvMap is the receiver's alias->topic map; capacity is the locally
// advertised Topic Alias Maximum. There is no LRU: the peer decides what
// to replace by resending an alias with a new (or no) topic.
type RecvMap struct {
	max uint16
	m   map[uint16]string
}

// NewRecvMap creates a receive-side map of the given local capacity.
func NewRecvMap(max uint16) *RecvMap {
	return &RecvMap{max: max, m: make(map[uint16]string)}
}

// Max returns the locally-advertised capacity.
func (m *RecvMap) Max() uint16 { return m.max }

// InsertOrUpdate stores or replaces the topic for alias.
func (m *RecvMap) InsertOrUpdate(alias uint16, topic string) {
	m.m[alias] = topic
}

// Find returns the topic currently registered for alias, or ok=false.
func (m *RecvMap) Find(alias uint16) (topic string, ok bool) {
	topic, ok = m.m[alias]
	return
}

// Clear resets the map.
func (m *RecvMap) Clear() {
	m.m = make(map[uint16]string)
}
