package simulated

import (
	"sync"

	"go.tunnelbridge/internal/localbus"
)

// pubsubTopic fans a publisher's samples out to every subscriber currently
// attached to the same fingerprint, independent of loan shape.
type pubsubTopic struct {
	mu   sync.Mutex
	subs map[localbus.PortID]*subQueue
}

func (b *Bus) topicFor(fp localbus.Fingerprint) *pubsubTopic {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.pubsub[fp]
	if !ok {
		t = &pubsubTopic{subs: make(map[localbus.PortID]*subQueue)}
		b.pubsub[fp] = t
	}
	return t
}

func (t *pubsubTopic) attach(id localbus.PortID) *subQueue {
	t.mu.Lock()
	defer t.mu.Unlock()
	q := &subQueue{}
	t.subs[id] = q
	return q
}

func (t *pubsubTopic) detach(id localbus.PortID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subs, id)
}

func (t *pubsubTopic) deliver(sample localbus.Sample) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, q := range t.subs {
		q.push(sample)
	}
}

type subQueue struct {
	mu    sync.Mutex
	items []localbus.Sample
}

func (q *subQueue) push(s localbus.Sample) {
	buf := make([]byte, len(s.Bytes))
	copy(buf, s.Bytes)
	s.Bytes = buf
	q.mu.Lock()
	q.items = append(q.items, s)
	q.mu.Unlock()
}

func (q *subQueue) pop() (localbus.Sample, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return localbus.Sample{}, false
	}
	s := q.items[0]
	q.items = q.items[1:]
	return s, true
}

// publisher is the simulated localbus.Publisher.
type publisher struct {
	id              localbus.PortID
	topic           *pubsubTopic
	elementSize     uint64
	initialSliceLen uint64
}

// CreatePublisher implements localbus.Bus.
func (b *Bus) CreatePublisher(fp localbus.Fingerprint, _ localbus.PayloadShape, elementSize uint64, initialSliceLen uint64) (localbus.Publisher, error) {
	return &publisher{
		id:              b.allocPortID(),
		topic:           b.topicFor(fp),
		elementSize:     elementSize,
		initialSliceLen: initialSliceLen,
	}, nil
}

func (p *publisher) ID() localbus.PortID { return p.id }

func (p *publisher) LoanFixed() (localbus.Slot, error) {
	return &slot{buf: make([]byte, p.elementSize), publisher: p}, nil
}

func (p *publisher) LoanSlice(n int) (localbus.Slot, error) {
	return &slot{buf: make([]byte, uint64(n)*p.elementSize), publisher: p}, nil
}

func (p *publisher) Close() error { return nil }

type slot struct {
	buf       []byte
	publisher *publisher
	done      bool
}

func (s *slot) Write(data []byte) {
	if len(data) > len(s.buf) {
		s.buf = append(s.buf[:0], data...)
		return
	}
	copy(s.buf, data)
	s.buf = s.buf[:len(data)]
}

func (s *slot) Send() error {
	if s.done {
		return localbus.ErrClosed
	}
	s.done = true
	s.publisher.topic.deliver(localbus.Sample{Bytes: s.buf, Origin: s.publisher.id})
	return nil
}

func (s *slot) Discard() { s.done = true }

// subscriber is the simulated localbus.Subscriber.
type subscriber struct {
	id    localbus.PortID
	topic *pubsubTopic
	queue *subQueue
}

// CreateSubscriber implements localbus.Bus.
func (b *Bus) CreateSubscriber(fp localbus.Fingerprint) (localbus.Subscriber, error) {
	id := b.allocPortID()
	topic := b.topicFor(fp)
	return &subscriber{id: id, topic: topic, queue: topic.attach(id)}, nil
}

func (s *subscriber) ID() localbus.PortID { return s.id }

func (s *subscriber) Receive() (localbus.Sample, bool, error) {
	sample, ok := s.queue.pop()
	return sample, ok, nil
}

func (s *subscriber) Close() error {
	s.topic.detach(s.id)
	return nil
}
