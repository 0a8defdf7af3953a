package events

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrBusClosed is returned by Publish after Close.
	ErrBusClosed = errors.New("event bus is closed")

	// ErrPayloadMismatch is returned when a payload does not match the type
	// registered for its event.
	ErrPayloadMismatch = errors.New("event payload mismatch")
)

func payloadOf[T any]() reflect.Type {
	return reflect.TypeFor[*T]()
}

// Payloads are always pointers to the event struct.
var payloadTypes = map[EventType]reflect.Type{
	BatchStarted:       payloadOf[BatchEvent](),
	BatchCompleted:     payloadOf[BatchEvent](),
	AssetExported:      payloadOf[AssetEvent](),
	AssetSkipped:       payloadOf[AssetEvent](),
	AssetFailed:        payloadOf[AssetEvent](),
	ArchiveUploaded:    payloadOf[UploadEvent](),
	ImportCompleted:    payloadOf[ImportEvent](),
	ImportFailed:       payloadOf[ImportEvent](),
	ConfigReloaded:     payloadOf[ConfigEvent](),
	ConfigReloadFailed: payloadOf[ConfigEvent](),
}

// ValidatePayload checks event.Payload against the type registered for
// event.Type. A nil payload is always accepted.
func ValidatePayload(event Event) error {
	if event.Payload == nil {
		return nil
	}

	want, ok := payloadTypes[event.Type]
	if !ok {
		return fmt.Errorf("%w; unknown event type %q", ErrPayloadMismatch, event.Type)
	}
	if got := reflect.TypeOf(event.Payload); got != want {
		return fmt.Errorf("%w; %s carries %s, want %s", ErrPayloadMismatch, event.Type, got, want)
	}
	return nil
}
