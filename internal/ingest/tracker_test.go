package ingest_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pixelpath/internal/ingest"
)

func TestTrackerClaimsOnce(t *testing.T) {
	tracker := ingest.NewTracker()
	id := ingest.NewFileIdentity("/inbox/a.jpg", time.Time{})

	if !tracker.TryClaim(id) {
		t.Fatal("expected first claim to succeed")
	}
	if tracker.TryClaim(id) {
		t.Fatal("expected second claim to fail while claimed")
	}
	tracker.MarkDone(id, ingest.OutcomeSucceeded)
	if tracker.TryClaim(id) {
		t.Fatal("expected claim to fail once done")
	}
	stats := tracker.Stats()
	if stats.Claimed != 0 || stats.Done != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestTrackerFirstOutcomeWins(t *testing.T) {
	tracker := ingest.NewTracker()
	id := ingest.NewFileIdentity("/inbox/a.jpg", time.Time{})
	tracker.TryClaim(id)
	tracker.MarkDone(id, ingest.OutcomeFailed)
	tracker.MarkDone(id, ingest.OutcomeSucceeded)

	outcome, ok := tracker.OutcomeOf(id)
	if !ok || outcome != ingest.OutcomeFailed {
		t.Fatalf("expected failed outcome to stick, got %q ok=%v", outcome, ok)
	}
}

func TestTrackerConcurrentClaimsHaveOneWinner(t *testing.T) {
	tracker := ingest.NewTracker()
	id := ingest.NewFileIdentity("/inbox/race.jpg", time.Time{})

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tracker.TryClaim(id) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
}

func TestTrackerReleaseAndRetry(t *testing.T) {
	tracker := ingest.NewTracker()
	queued := ingest.NewFileIdentity("/inbox/queued.jpg", time.Time{})
	failed := ingest.NewFileIdentity("/inbox/failed.jpg", time.Time{})
	ok := ingest.NewFileIdentity("/inbox/ok.jpg", time.Time{})

	tracker.TryClaim(queued)
	if !tracker.Release(queued) {
		t.Fatal("expected release of claimed identity")
	}
	if tracker.Release(queued) {
		t.Fatal("expected second release to report nothing released")
	}
	if !tracker.TryClaim(queued) {
		t.Fatal("expected released identity to be claimable")
	}

	tracker.TryClaim(failed)
	tracker.MarkDone(failed, ingest.OutcomeFailed)
	tracker.TryClaim(ok)
	tracker.MarkDone(ok, ingest.OutcomeSucceeded)

	if n := tracker.ReleaseFailed(); n != 1 {
		t.Fatalf("expected 1 failed release, got %d", n)
	}
	if !tracker.TryClaim(failed) {
		t.Fatal("expected failed identity to be claimable after release")
	}
	if tracker.TryClaim(ok) {
		t.Fatal("succeeded identity must stay done")
	}
}

func TestTrackerForgetRemovesAllVersions(t *testing.T) {
	tracker := ingest.NewTracker()
	first := ingest.NewFileIdentity("/inbox/a.jpg", time.Unix(100, 0))
	second := ingest.NewFileIdentity("/inbox/a.jpg", time.Unix(200, 0))
	other := ingest.NewFileIdentity("/inbox/b.jpg", time.Time{})
	for _, id := range []ingest.FileIdentity{first, second, other} {
		tracker.TryClaim(id)
		tracker.MarkDone(id, ingest.OutcomeSucceeded)
	}

	if n := tracker.Forget("/inbox/a.jpg"); n != 2 {
		t.Fatalf("expected 2 entries forgotten, got %d", n)
	}
	if tracker.Known(first) || tracker.Known(second) {
		t.Fatal("expected forgotten identities to be unknown")
	}
	if !tracker.Known(other) {
		t.Fatal("expected unrelated identity to remain")
	}
}

func TestTrackerPinBlocksClaimsOnPath(t *testing.T) {
	tracker := ingest.NewTracker()
	id := ingest.NewFileIdentity("/inbox/slow.mov", time.Unix(100, 0))
	edited := ingest.NewFileIdentity("/inbox/slow.mov", time.Unix(200, 0))
	tracker.TryClaim(id)
	tracker.Pin(id.Path)
	tracker.Pin(id.Path)
	tracker.MarkDone(id, ingest.OutcomeFailed)

	if n := tracker.ReleaseFailed(); n != 1 {
		t.Fatalf("expected failed entry released, got %d", n)
	}
	if tracker.TryClaim(id) || tracker.TryClaim(edited) {
		t.Fatal("pinned path must not be claimable")
	}
	if !tracker.Known(id) {
		t.Fatal("pinned path should read as known")
	}
	tracker.Unpin(id.Path)
	if tracker.TryClaim(id) {
		t.Fatal("path should stay pinned until every pin is undone")
	}
	tracker.Unpin(id.Path)
	if stats := tracker.Stats(); stats.Pinned != 0 {
		t.Fatalf("expected no pinned paths, got %+v", stats)
	}
	if !tracker.TryClaim(id) {
		t.Fatal("expected claim once unpinned")
	}
}

func TestTrackerSeed(t *testing.T) {
	tracker := ingest.NewTracker()
	claimed := ingest.NewFileIdentity("/inbox/busy.jpg", time.Time{})
	tracker.TryClaim(claimed)

	added := tracker.Seed([]string{"/inbox/a.jpg", "/inbox/b.jpg@1700000000000000000", "", claimed.Key()}, ingest.OutcomeSucceeded)
	if added != 2 {
		t.Fatalf("expected 2 seeded entries, got %d", added)
	}
	if tracker.TryClaim(ingest.NewFileIdentity("/inbox/a.jpg", time.Time{})) {
		t.Fatal("expected seeded identity to be done")
	}
	if n := tracker.Forget("/inbox/b.jpg"); n != 1 {
		t.Fatalf("expected seeded modtime key to map back to its path, got %d", n)
	}
	if !tracker.IsClaimed(claimed) {
		t.Fatal("seeding must not disturb claimed entries")
	}
}

func TestFileIdentityKey(t *testing.T) {
	plain := ingest.NewFileIdentity("/inbox/./a.jpg", time.Time{})
	if plain.Key() != "/inbox/a.jpg" {
		t.Fatalf("unexpected key %q", plain.Key())
	}
	stamped := ingest.NewFileIdentity("/inbox/a.jpg", time.Unix(0, 42))
	if stamped.Key() != "/inbox/a.jpg@42" {
		t.Fatalf("unexpected key %q", stamped.Key())
	}
	if got := ingest.PathFromKey(stamped.Key()); got != "/inbox/a.jpg" {
		t.Fatalf("unexpected path %q", got)
	}
	if got := ingest.PathFromKey("/inbox/me@home.jpg"); got != "/inbox/me@home.jpg" {
		t.Fatalf("non-numeric suffix must be kept, got %q", got)
	}
}

func TestClassifier(t *testing.T) {
	c := ingest.NewClassifier([]string{"jpg", ".PNG"}, []string{".mp4"})
	cases := map[string]ingest.MediaType{
		"/a/photo.JPG": ingest.MediaImage,
		"/a/photo.png": ingest.MediaImage,
		"/a/clip.MP4":  ingest.MediaVideo,
		"/a/notes.txt": ingest.MediaUnknown,
		"/a/README":    ingest.MediaUnknown,
	}
	for path, want := range cases {
		if got := c.Classify(path); got != want {
			t.Fatalf("Classify(%q) = %q, want %q", path, got, want)
		}
	}
}
