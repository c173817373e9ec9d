package hub

import (
	"sync"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/pkg/protocol"
)

// topic is one subscriber set. A topic marked removed is no longer in the
// registry and must not gain subscribers.
type topic struct {
	name string
	kind protocol.TopicKind

	mu          sync.RWMutex
	subscribers map[*Client]struct{}
	removed     bool
}

func newTopic(name string) *topic {
	return &topic{
		name:        name,
		kind:        protocol.KindOf(name),
		subscribers: make(map[*Client]struct{}),
	}
}

func (t *topic) size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subscribers)
}

// registry maps topic names to topics. Lock order is registry before topic;
// nothing takes the registry lock while holding a topic lock.
type registry struct {
	mu     sync.RWMutex
	topics map[string]*topic
}

func newRegistry() *registry {
	return &registry{topics: make(map[string]*topic)}
}

func (r *registry) get(name string) *topic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.topics[name]
}

func (r *registry) getOrCreate(name string) *topic {
	if t := r.get(name); t != nil {
		return t
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.topics[name]; ok {
		return t
	}
	t := newTopic(name)
	r.topics[name] = t
	return t
}

// removeIfEmpty drops t from the registry when it has no subscribers left.
func (r *registry) removeIfEmpty(t *topic) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.subscribers) > 0 || r.topics[t.name] != t {
		return false
	}
	t.removed = true
	delete(r.topics, t.name)
	return true
}

// remove tears t down regardless of subscribers and returns who was on it.
func (r *registry) remove(name string) []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[name]
	if !ok {
		return nil
	}
	delete(r.topics, name)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.removed = true
	clients := make([]*Client, 0, len(t.subscribers))
	for c := range t.subscribers {
		clients = append(clients, c)
	}
	t.subscribers = make(map[*Client]struct{})
	return clients
}

func (r *registry) stats() (topics int, subscriptions int, byKind map[protocol.TopicKind]int) {
	r.mu.RLock()
	all := make([]*topic, 0, len(r.topics))
	for _, t := range r.topics {
		all = append(all, t)
	}
	r.mu.RUnlock()

	byKind = make(map[protocol.TopicKind]int)
	for _, t := range all {
		n := t.size()
		subscriptions += n
		byKind[t.kind] += n
	}
	return len(all), subscriptions, byKind
}
