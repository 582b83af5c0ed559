package simulated

import (
	"sync"
	"sync/atomic"

	"go.tunnelbridge/internal/localbus"
)

// descriptorTopic delivers ServiceDescriptor events to subscribers of a
// well-known local topic, simulating an external discovery daemon.
type descriptorTopic struct {
	mu   sync.Mutex
	subs map[*descriptorSubscriber]struct{}
}

func (b *Bus) descriptorTopicFor(topic string) *descriptorTopic {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[topic]
	if !ok {
		t = &descriptorTopic{subs: make(map[*descriptorSubscriber]struct{})}
		b.topics[topic] = t
	}
	return t
}

func (t *descriptorTopic) publish(desc localbus.ServiceDescriptor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for s := range t.subs {
		s.push(desc)
	}
}

func (t *descriptorTopic) attach(s *descriptorSubscriber) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs[s] = struct{}{}
}

func (t *descriptorTopic) detach(s *descriptorSubscriber) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subs, s)
}

const descriptorQueueCapacity = 64

type descriptorSubscriber struct {
	topic      *descriptorTopic
	mu         sync.Mutex
	items      []localbus.ServiceDescriptor
	overflowed atomic.Uint64
}

// SubscribeDescriptors implements localbus.Bus.
func (b *Bus) SubscribeDescriptors(topic string) (localbus.DescriptorSubscriber, error) {
	t := b.descriptorTopicFor(topic)
	s := &descriptorSubscriber{topic: t}
	t.attach(s)
	return s, nil
}

func (s *descriptorSubscriber) push(desc localbus.ServiceDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) >= descriptorQueueCapacity {
		s.overflowed.Add(1)
		return
	}
	s.items = append(s.items, desc)
}

func (s *descriptorSubscriber) Receive() (localbus.ServiceDescriptor, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return localbus.ServiceDescriptor{}, false, nil
	}
	d := s.items[0]
	s.items = s.items[1:]
	return d, true, nil
}

func (s *descriptorSubscriber) Overflowed() uint64 {
	return s.overflowed.Swap(0)
}

func (s *descriptorSubscriber) Close() error {
	s.topic.detach(s)
	return nil
}
