package metrics

import "testing"

func TestSetMaxPublishUsTracksRunningMaximum(t *testing.T) {
	m := PubSub()

	m.SetMaxPublishUs(100)
	if got := m.maxPublishUsSeen.Load(); got != 100 {
		t.Fatalf("after SetMaxPublishUs(100), maxPublishUsSeen = %d, want 100", got)
	}

	m.SetMaxPublishUs(50)
	if got := m.maxPublishUsSeen.Load(); got != 100 {
		t.Fatalf("after SetMaxPublishUs(50), maxPublishUsSeen = %d, want 100 (must not regress)", got)
	}

	m.SetMaxPublishUs(250)
	if got := m.maxPublishUsSeen.Load(); got != 250 {
		t.Fatalf("after SetMaxPublishUs(250), maxPublishUsSeen = %d, want 250", got)
	}
}
