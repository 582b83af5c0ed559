// Package localbus defines the contract the tunnel needs from the node-local
// shared-memory pub/sub/event fabric. The real fabric (a binding over the
// iceoryx2 C API) is out of scope for this repository; this package is the
// interface boundary a cgo binding would implement, plus the descriptor data
// model shared with the wire side.
package localbus

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Fingerprint is the stable, layout-derived identifier of a service. Two
// services on different hosts with the same fingerprint expose the same
// payload type and messaging pattern.
type Fingerprint [32]byte

// String renders the fingerprint as a stable hex form, used verbatim as a
// path segment by the servicekey package.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// ParseFingerprint parses the hex form produced by String.
func ParseFingerprint(s string) (Fingerprint, error) {
	var fp Fingerprint
	b, err := hex.DecodeString(s)
	if err != nil {
		return fp, err
	}
	if len(b) != len(fp) {
		return fp, errInvalidFingerprintLength
	}
	copy(fp[:], b)
	return fp, nil
}

// Pattern is the messaging pattern a service exposes.
type Pattern uint8

const (
	PatternPubSub Pattern = iota
	PatternEvent
)

func (p Pattern) String() string {
	if p == PatternEvent {
		return "event"
	}
	return "pub_sub"
}

// PayloadShape distinguishes fixed-size record payloads from variable-length
// slice payloads. Only meaningful when Pattern == PatternPubSub.
type PayloadShape uint8

const (
	ShapeFixed PayloadShape = iota
	ShapeSlice
)

func (s PayloadShape) String() string {
	if s == ShapeSlice {
		return "slice"
	}
	return "fixed"
}

// ElementType identifies the payload's element layout. For ShapeFixed, Size
// is the record size; for ShapeSlice, Size/Align describe one element.
type ElementType struct {
	Name  string `json:"name"`
	Size  uint64 `json:"size"`
	Align uint64 `json:"align"`
}

// Params carries the pattern-specific tunables a service was created with.
type Params struct {
	HistorySize     uint64 `json:"history_size,omitempty"`
	MaxSubscribers  uint64 `json:"max_subscribers,omitempty"`
	MaxNotifiers    uint64 `json:"max_notifiers,omitempty"`
	InitialSliceLen uint64 `json:"initial_slice_len,omitempty"`
	EventIDMin      uint64 `json:"event_id_min,omitempty"`
	EventIDMax      uint64 `json:"event_id_max,omitempty"`
}

// ServiceDescriptor is the serializable record announced on the wire and
// compared across discovery planes. It round-trips through JSON so a peer
// knowing only the schema can decode it without a shared schema binary.
type ServiceDescriptor struct {
	Fingerprint Fingerprint  `json:"fingerprint"`
	Name        string       `json:"name"`
	Pattern     Pattern      `json:"pattern"`
	Shape       PayloadShape `json:"shape,omitempty"`
	Element     ElementType  `json:"element,omitempty"`
	Params      Params       `json:"params,omitempty"`
}

// ComputeFingerprint derives a stable fingerprint from a descriptor's static
// configuration. The human-readable Name is deliberately excluded from the
// hash input, so renaming a service never changes its fingerprint.
func ComputeFingerprint(pattern Pattern, shape PayloadShape, element ElementType, params Params) Fingerprint {
	h := sha256.New()
	h.Write([]byte{byte(pattern), byte(shape)})
	h.Write([]byte(element.Name))
	var buf [8]byte
	writeUint := func(v uint64) {
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	writeUint(element.Size)
	writeUint(element.Align)
	writeUint(params.HistorySize)
	writeUint(params.MaxSubscribers)
	writeUint(params.MaxNotifiers)
	writeUint(params.InitialSliceLen)
	writeUint(params.EventIDMin)
	writeUint(params.EventIDMax)

	var fp Fingerprint
	copy(fp[:], h.Sum(nil))
	return fp
}

// WithFingerprint returns a copy of the descriptor with Fingerprint populated
// from its own static configuration.
func (d ServiceDescriptor) WithFingerprint() ServiceDescriptor {
	d.Fingerprint = ComputeFingerprint(d.Pattern, d.Shape, d.Element, d.Params)
	return d
}

// EventID is a small unsigned integer in a service-defined range.
type EventID uint64

// PortID identifies a local publisher/subscriber/notifier/listener endpoint
// within this process. It is sufficient to distinguish a connector's own
// publisher from any other local port for loopback suppression purposes.
type PortID uint64
