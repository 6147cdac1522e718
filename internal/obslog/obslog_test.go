package obslog

import (
	"errors"
	"testing"
	"time"

	"github.com/clarion-segmentation/clarion/pkg/models"
)

func TestLogger_SuppressesWithinInterval(t *testing.T) {
	l := New(50 * time.Millisecond)
	key := bucketKey{kind: models.MalformedRecord, source: "decoder"}

	l.Error(models.MalformedRecord, "decoder", errors.New("bad record"))
	b := l.buckets[key]
	if b.suppressed != 0 {
		t.Fatalf("first call should log immediately, got suppressed=%d", b.suppressed)
	}

	l.Error(models.MalformedRecord, "decoder", errors.New("bad record 2"))
	if b.suppressed != 1 {
		t.Fatalf("second call within interval should be suppressed, got suppressed=%d", b.suppressed)
	}
}

func TestLogger_DistinctSourcesIndependentBuckets(t *testing.T) {
	l := New(50 * time.Millisecond)
	l.Error(models.MalformedRecord, "decoder-a", errors.New("x"))
	l.Error(models.MalformedRecord, "decoder-b", errors.New("y"))

	if len(l.buckets) != 2 {
		t.Fatalf("expected 2 independent buckets, got %d", len(l.buckets))
	}
}

func TestLogger_ResumesLoggingAfterInterval(t *testing.T) {
	l := New(10 * time.Millisecond)
	key := bucketKey{kind: models.TransientExternal, source: "catalog"}

	l.Error(models.TransientExternal, "catalog", errors.New("unreachable"))
	time.Sleep(15 * time.Millisecond)
	l.Error(models.TransientExternal, "catalog", errors.New("unreachable again"))

	if l.buckets[key].suppressed != 0 {
		t.Fatalf("expected suppressed count reset after interval elapsed, got %d", l.buckets[key].suppressed)
	}
}
