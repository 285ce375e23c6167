// Package messages implements the CBOR (RFC 7049) typed-message
// envelope OSP streams carry, and the message demultiplexer that routes
// decoded bodies to per-(instance, type) subscribers.
//
// Each message on the wire is a type tag (an unsigned CBOR integer)
// immediately followed by one CBOR body item — a map, in every message
// this package defines. The demuxer is schema-agnostic: it decodes the
// tag, captures the body as a [cbor.RawMessage], and leaves the caller to
// decode that against whichever concrete struct the tag implies.
package messages

import (
	"bytes"
	"sync"

	"github.com/fxamacker/cbor/v2"

	osperrors "github.com/openscreen-go/openscreen/internal/errors"
	"github.com/openscreen-go/openscreen/platform/slogx"
)

// Type is a message's leading CBOR tag.
// PresentationUrlAvailabilityRequest's 2000 is fixed by the protocol;
// the authentication tags are small local assignments, since the
// generator that would otherwise produce them is explicitly out of scope.
type Type uint64

const (
	TypeAuthSpake2Handshake    Type = 1
	TypeAuthSpake2Confirmation Type = 2
	TypeAuthStatus             Type = 3

	TypePresentationUrlAvailabilityRequest Type = 2000
)

var canonicalMode = func() cbor.EncMode {
	m, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return m
}()

// PresentationUrlAvailabilityRequest asks a receiver which of the given
// URLs it can present: {request-id: uint, urls: [text, …]}.
type PresentationUrlAvailabilityRequest struct {
	RequestID uint64   `cbor:"request-id"`
	URLs      []string `cbor:"urls"`
}

// AuthSpake2Handshake carries one side's SPAKE2 public value.
type AuthSpake2Handshake struct {
	PublicValue []byte `cbor:"public-value"`
}

// AuthSpake2Confirmation carries the confirmation tag each side computes
// over the derived shared key, letting the peer detect a password
// mismatch before trusting the connection.
type AuthSpake2Confirmation struct {
	ConfirmationValue []byte `cbor:"confirmation-value"`
}

// AuthStatus reports the server's accept/reject decision for the
// handshake.
type AuthStatus struct {
	Result uint64 `cbor:"result"`
}

// EncodeMessage writes a type tag followed by the canonical CBOR encoding
// of body, reproducing the same bytes on every call for an equal body.
func EncodeMessage(msgType Type, body any) ([]byte, error) {
	var buf bytes.Buffer
	tagBytes, err := canonicalMode.Marshal(uint64(msgType))
	if err != nil {
		return nil, &osperrors.ProtocolError{Code: "cbor-encode-failed", Operation: "EncodeMessage(tag)", Err: err}
	}
	buf.Write(tagBytes)

	bodyBytes, err := canonicalMode.Marshal(body)
	if err != nil {
		return nil, &osperrors.ProtocolError{Code: "cbor-encode-failed", Operation: "EncodeMessage(body)", Err: err}
	}
	buf.Write(bodyBytes)
	return buf.Bytes(), nil
}

// DecodeBody unmarshals a message body captured by the demuxer into out.
func DecodeBody(body cbor.RawMessage, out any) error {
	if err := cbor.Unmarshal(body, out); err != nil {
		return &osperrors.WireFormatError{Operation: "DecodeBody", Offset: -1, Message: "malformed CBOR message body", Err: err}
	}
	return nil
}

// Watcher receives dispatched messages and stream-close notifications for
// the (instance, type) pairs it registered for via
// [Demuxer.WatchMessageType].
type Watcher interface {
	OnMessage(instanceID uint64, msgType Type, body cbor.RawMessage)
	OnStreamClose(instanceID, streamID uint64)
}

type watchKey struct {
	instanceID uint64
	msgType    Type
}

// Watch is a cancellable handle returned by [Demuxer.WatchMessageType].
type Watch struct {
	d   *Demuxer
	key watchKey
}

// Cancel removes this watch. Safe to call more than once.
func (w *Watch) Cancel() {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	delete(w.d.watches, w.key)
}

type streamKey struct {
	instanceID, streamID uint64
}

// Demuxer is the message demultiplexer: a type-keyed
// dispatcher that buffers partial reads per (instance, stream) up to
// bufferLimit and reports EOF via OnStreamClose.
//
// Buffering is CBOR-native: [cbor.Decoder]'s incremental-read support
// reports how many bytes a partial decode consumed, so the demuxer
// never needs its own framing scanner.
type Demuxer struct {
	bufferLimit int
	logger      slogx.Logger

	mu      sync.Mutex
	watches map[watchKey]Watcher
	buffers map[streamKey][]byte
}

// NewDemuxer constructs a Demuxer that drops a stream's buffered bytes
// (logging once, never erroring) if bufferLimit is exceeded without
// producing a complete message.
func NewDemuxer(bufferLimit int, logger slogx.Logger) *Demuxer {
	if logger == nil {
		logger = slogx.Default()
	}
	return &Demuxer{
		bufferLimit: bufferLimit,
		logger:      logger,
		watches:     make(map[watchKey]Watcher),
		buffers:     make(map[streamKey][]byte),
	}
}

// WatchMessageType installs watcher for messages of msgType on
// instanceID, returning a handle the caller cancels to stop receiving
// them. Re-installing for the same (instanceID, msgType) replaces the
// previous watcher, matching quic_service_base.cc's "if (!watch) watch =
// demuxer_.WatchMessageType(...)" idempotent-install idiom.
func (d *Demuxer) WatchMessageType(instanceID uint64, msgType Type, watcher Watcher) *Watch {
	key := watchKey{instanceID: instanceID, msgType: msgType}
	d.mu.Lock()
	d.watches[key] = watcher
	d.mu.Unlock()
	return &Watch{d: d, key: key}
}

// OnStreamData feeds newly-received bytes for (instanceID, streamID),
// decoding and dispatching as many complete messages as the buffer now
// contains.
func (d *Demuxer) OnStreamData(instanceID, streamID uint64, data []byte) {
	key := streamKey{instanceID: instanceID, streamID: streamID}

	d.mu.Lock()
	buf := append(d.buffers[key], data...)
	d.buffers[key] = buf
	d.mu.Unlock()

	for {
		msgType, body, consumed, ok := tryDecodeOne(buf)
		if !ok {
			break
		}
		buf = buf[consumed:]

		d.mu.Lock()
		watcher := d.watches[watchKey{instanceID: instanceID, msgType: msgType}]
		d.mu.Unlock()
		if watcher != nil {
			watcher.OnMessage(instanceID, msgType, body)
		}
	}

	d.mu.Lock()
	if d.bufferLimit > 0 && len(buf) > d.bufferLimit {
		d.logger.Warn("demuxer stream buffer exceeded limit without a complete message, dropping",
			"instance_id", instanceID, "stream_id", streamID, "buffered", len(buf), "limit", d.bufferLimit)
		buf = nil
	}
	d.buffers[key] = buf
	d.mu.Unlock()
}

// OnStreamClose notifies every watcher for instanceID that streamID has
// ended and discards its buffered bytes.
func (d *Demuxer) OnStreamClose(instanceID, streamID uint64) {
	d.mu.Lock()
	delete(d.buffers, streamKey{instanceID: instanceID, streamID: streamID})
	watchers := make([]Watcher, 0, len(d.watches))
	for k, w := range d.watches {
		if k.instanceID == instanceID {
			watchers = append(watchers, w)
		}
	}
	d.mu.Unlock()

	for _, w := range watchers {
		w.OnStreamClose(instanceID, streamID)
	}
}

// tryDecodeOne attempts to decode one (type tag, body) pair from the head
// of buf, returning ok=false if buf does not yet hold a complete message.
func tryDecodeOne(buf []byte) (msgType Type, body cbor.RawMessage, consumed int, ok bool) {
	r := bytes.NewReader(buf)
	dec := cbor.NewDecoder(r)

	var tag uint64
	if err := dec.Decode(&tag); err != nil {
		return 0, nil, 0, false
	}
	if err := dec.Decode(&body); err != nil {
		return 0, nil, 0, false
	}
	return Type(tag), body, int(dec.NumBytesRead()), true
}
