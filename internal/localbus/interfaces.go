package localbus

// Registry abstracts the local bus's service registry, the source the
// TrackerVariant discovery port diffs against. A real binding would read
// the shared-memory directory of advertised services; Snapshot must be a
// cheap, synchronous, non-blocking read.
type Registry interface {
	Snapshot() (map[Fingerprint]ServiceDescriptor, error)
}

// Sample is a received payload sample: the raw bytes a local publisher wrote
// (a fixed record image, or a slice's element bytes), plus the identity of
// the local port that published it (used for loopback suppression).
type Sample struct {
	Bytes  []byte
	Origin PortID
}

// Slot is an uninitialized or loaned sample the caller must write into and
// either Send or Discard. It unifies fixed and slice payload shapes behind
// one loan/write/send lifecycle.
type Slot interface {
	// Write copies data into the loaned slot. For slice shapes the slot was
	// sized to len(data) (or larger) at loan time.
	Write(data []byte)
	// Send publishes the written slot. The slot must not be reused after.
	Send() error
	// Discard releases the slot without publishing.
	Discard()
}

// Publisher is a local-bus publish endpoint for one pub/sub service.
type Publisher interface {
	ID() PortID
	// LoanFixed loans a slot sized for the service's fixed record layout.
	LoanFixed() (Slot, error)
	// LoanSlice loans a slot for n slice elements.
	LoanSlice(n int) (Slot, error)
	Close() error
}

// Subscriber is a local-bus subscribe endpoint for one pub/sub service.
type Subscriber interface {
	ID() PortID
	// Receive returns the next queued sample, or ok=false if none is
	// currently available. Never blocks.
	Receive() (sample Sample, ok bool, err error)
	Close() error
}

// Notifier is a local-bus notify endpoint for one event service.
type Notifier interface {
	ID() PortID
	Notify(id EventID) error
	Close() error
}

// Listener is a local-bus listen endpoint for one event service. DrainDistinct
// performs the fabric's own "try_wait_all" style drain, returning the set of
// distinct event ids raised since the previous drain — deduplication is a
// property of the local fabric's edge-triggered listener, not of the caller.
type Listener interface {
	ID() PortID
	DrainDistinct() (ids map[EventID]struct{}, origin map[EventID]PortID, err error)
	Close() error
}

// DescriptorSubscriber receives ServiceDescriptor events from a well-known
// local topic, used by the DaemonVariant discovery port. Overflowed reports
// the number of events dropped by a full delivery buffer since the last
// call, so missed events can be surfaced rather than silently lost.
type DescriptorSubscriber interface {
	Receive() (desc ServiceDescriptor, ok bool, err error)
	Overflowed() uint64
	Close() error
}

// Bus is the full local-bus surface the tunnel depends on: the registry used
// by TrackerVariant, port factories for the two messaging patterns, and a
// topic subscription primitive used by DaemonVariant.
type Bus interface {
	Registry

	CreatePublisher(fp Fingerprint, shape PayloadShape, elementSize uint64, initialSliceLen uint64) (Publisher, error)
	CreateSubscriber(fp Fingerprint) (Subscriber, error)
	CreateNotifier(fp Fingerprint) (Notifier, error)
	CreateListener(fp Fingerprint) (Listener, error)

	SubscribeDescriptors(topic string) (DescriptorSubscriber, error)

	// PublishDiscoveryEvent delivers desc to every current subscriber of
	// topic. It plays the role of an external discovery-service daemon —
	// used by bridges (e.g. an mDNS relay) that translate another
	// discovery mechanism into this local topic.
	PublishDiscoveryEvent(topic string, desc ServiceDescriptor) error

	Close() error
}
