package account

import "fmt"

// headerWords is sizeof(EventQueueHeader)/8.
const headerWords = 4

// eventWords is sizeof(Event)/8.
const eventWords = 9

// EventQueueHeader is the fixed-size header at the front of an event
// queue's inner payload.
type EventQueueHeader struct {
	AccountFlags uint64
	Head         uint64
	Count        uint64
	SeqNum       uint64
}

// Event is a single fixed-size match-engine output record. Only Owner
// matters for the crank; the rest is carried for completeness and for
// print-event-queue.
type Event struct {
	Flags             uint8
	OwnerSlot         uint8
	FeeTier           uint8
	NativeQtyReleased uint64
	NativeQtyPaid     uint64
	NativeFeeOrRebate uint64
	Owner             [4]uint64
	ClientOrderID     uint64
}

// ErrHeaderDecode / ErrEventDecode signal a rejected byte layout.
var (
	ErrHeaderDecode = fmt.Errorf("event queue header: byte layout rejected")
	ErrEventDecode  = fmt.Errorf("event queue events: remainder not a multiple of event size")
)

func decodeHeader(words Words) EventQueueHeader {
	return EventQueueHeader{
		AccountFlags: words[0],
		Head:         words[1],
		Count:        words[2],
		SeqNum:       words[3],
	}
}

func decodeEvent(w Words) Event {
	w0 := w[0]
	return Event{
		Flags:             uint8(w0),
		OwnerSlot:         uint8(w0 >> 8),
		FeeTier:           uint8(w0 >> 16),
		NativeQtyReleased: w[1],
		NativeQtyPaid:     w[2],
		NativeFeeOrRebate: w[3],
		Owner:             [4]uint64{w[4], w[5], w[6], w[7]},
		ClientOrderID:     w[8],
	}
}

// ParseEventQueue splits words into the header and the live event segments
// in queue order: seg0 is the contiguous run starting at header.Head, seg1
// is the wrapped remainder starting at index 0 (empty if the queue hasn't
// wrapped). len(seg0)+len(seg1) == header.Count holds whenever
// header.Count <= capacity; a larger Count yields all capacity events. All
// index arithmetic here is saturating so malformed-but-type-valid inputs
// never panic.
func ParseEventQueue(words Words) (EventQueueHeader, []Event, []Event, error) {
	if len(words) < headerWords {
		return EventQueueHeader{}, nil, nil, ErrHeaderDecode
	}
	header := decodeHeader(words[:headerWords])
	eventData := words[headerWords:]
	if len(eventData)%eventWords != 0 {
		return header, nil, nil, ErrEventDecode
	}

	capacity := len(eventData) / eventWords
	events := make([]Event, capacity)
	for i := 0; i < capacity; i++ {
		events[i] = decodeEvent(eventData[i*eventWords : (i+1)*eventWords])
	}

	head := capacity
	if header.Head < uint64(capacity) {
		head = int(header.Head)
	}
	tailSeg, headSeg := events[:head], events[head:]

	count := capacity
	if header.Count < uint64(capacity) {
		count = int(header.Count)
	}
	headLen := len(headSeg)
	if headLen > count {
		headLen = count
	}
	tailLen := count - headLen
	if tailLen > len(tailSeg) {
		tailLen = len(tailSeg)
	}

	return header, headSeg[:headLen], tailSeg[:tailLen], nil
}
