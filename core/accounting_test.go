package voicesession

import (
	"testing"

	"github.com/dbroz/warble-core/core/audio"
)

func testEncoding() audio.EncodingInfo {
	return audio.EncodingInfo{SampleRate: 24000, Format: audio.EncodingLinear16}
}

func TestAccountingAccumulatesDuration(t *testing.T) {
	accounting := newAudioAccounting(testEncoding())

	accounting.beginResponse("item-1")
	accounting.advance("item-1", 24000) // 500ms at 48000 B/s
	accounting.advance("item-1", 12000) // +250ms

	itemID, ms, ok := accounting.truncationPoint()
	if !ok {
		t.Fatalf("expected a truncation point")
	}
	if itemID != "item-1" || ms != 750 {
		t.Fatalf("expected item-1 at 750ms, got %s at %dms", itemID, ms)
	}
}

func TestAccountingNothingToTruncate(t *testing.T) {
	accounting := newAudioAccounting(testEncoding())

	if _, _, ok := accounting.truncationPoint(); ok {
		t.Fatalf("fresh accounting reported a truncation point")
	}

	// An item id with zero heard audio is not truncatable either.
	accounting.beginResponse("item-1")
	if _, _, ok := accounting.truncationPoint(); ok {
		t.Fatalf("zero-duration response reported a truncation point")
	}
}

func TestAccountingAdoptsLateItemID(t *testing.T) {
	accounting := newAudioAccounting(testEncoding())

	// A response can start before the provider names its item.
	accounting.beginResponse("")
	accounting.advance("", 4800)
	accounting.advance("item-1", 4800)

	itemID, ms, ok := accounting.truncationPoint()
	if !ok || itemID != "item-1" {
		t.Fatalf("expected late item id adopted, got %q ok=%v", itemID, ok)
	}
	if ms != 200 {
		t.Fatalf("expected 200ms including pre-id audio, got %d", ms)
	}

	// adoptItem never overwrites an already-known id.
	accounting.adoptItem("item-2")
	if itemID, _, _ := accounting.truncationPoint(); itemID != "item-1" {
		t.Fatalf("adoptItem overwrote item id: %q", itemID)
	}
}

func TestAccountingNewResponseResetsCounter(t *testing.T) {
	accounting := newAudioAccounting(testEncoding())

	accounting.beginResponse("item-1")
	accounting.advance("item-1", 48000)
	accounting.beginResponse("item-2")
	accounting.advance("item-2", 4800)

	itemID, ms, ok := accounting.truncationPoint()
	if !ok || itemID != "item-2" || ms != 100 {
		t.Fatalf("expected item-2 at 100ms, got %s at %dms ok=%v", itemID, ms, ok)
	}
}

func TestAccountingReset(t *testing.T) {
	accounting := newAudioAccounting(testEncoding())

	accounting.beginResponse("item-1")
	accounting.advance("item-1", 48000)
	accounting.reset()

	if _, _, ok := accounting.truncationPoint(); ok {
		t.Fatalf("reset accounting still reports a truncation point")
	}
}
