package voicesession

import "github.com/dbroz/warble-core/core/audio"

// audioAccounting tracks how much assistant audio has been emitted for the
// in-flight response, measured as cumulative decoded-audio duration at the
// negotiated sample rate. Wall-clock time is deliberately not used: byte
// counts stay accurate when the provider streams faster than realtime.
//
// Mutated only from the session event loop.
type audioAccounting struct {
	encoding audio.EncodingInfo

	itemID       string
	emittedBytes int
}

func newAudioAccounting(encoding audio.EncodingInfo) *audioAccounting {
	return &audioAccounting{encoding: encoding}
}

// beginResponse resets the counter for a new assistant item. An empty
// itemID keeps accumulating; the id is filled by the first delta carrying it.
func (a *audioAccounting) beginResponse(itemID string) {
	a.itemID = itemID
	a.emittedBytes = 0
}

// advance records one played-back delta. The item id is adopted from the
// delta when the response started without one.
func (a *audioAccounting) advance(itemID string, byteCount int) {
	if a.itemID == "" && itemID != "" {
		a.itemID = itemID
	}
	a.emittedBytes += byteCount
}

// truncationPoint returns the item id and milliseconds heard so far, or
// ok=false when there is nothing to truncate.
func (a *audioAccounting) truncationPoint() (itemID string, ms int64, ok bool) {
	ms = a.encoding.DurationMS(a.emittedBytes)
	if a.itemID == "" || ms == 0 {
		return "", 0, false
	}
	return a.itemID, ms, true
}

// adoptItem fills the item id when it arrives after the first delta.
func (a *audioAccounting) adoptItem(itemID string) {
	if a.itemID == "" {
		a.itemID = itemID
	}
}

// reset clears the accounting after a barge-in truncation.
func (a *audioAccounting) reset() {
	a.itemID = ""
	a.emittedBytes = 0
}
