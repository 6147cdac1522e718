// Package obslog rate-limits error logging per §7: at most one log
// line per error kind per second per source, to avoid log storms
// during sustained failure. Grounded on the teacher's per-IP
// token-bucket RateLimiter (internal/api/ratelimit.go), repurposed
// from throttling HTTP requests to throttling log lines — the same
// bucket-per-key and idle-cleanup structure, a (kind, source) key
// instead of a client IP, and each bucket reduced to a last-logged
// timestamp rather than a refilling token count.
package obslog

import (
	"log"
	"sync"
	"time"

	"github.com/clarion-segmentation/clarion/pkg/models"
)

const cleanupIdleDuration = 10 * time.Minute

type bucketKey struct {
	kind   models.ErrorKind
	source string
}

type bucket struct {
	lastLogged time.Time
	suppressed uint64
	mu         sync.Mutex
}

// Logger rate-limits structured error log lines. One Logger should be
// shared process-wide.
type Logger struct {
	minInterval time.Duration
	mu          sync.Mutex
	buckets     map[bucketKey]*bucket
}

// New builds a Logger allowing at most one line per kind per source
// every minInterval (default 1s per §7 when zero is passed).
func New(minInterval time.Duration) *Logger {
	if minInterval <= 0 {
		minInterval = time.Second
	}
	l := &Logger{minInterval: minInterval, buckets: make(map[bucketKey]*bucket)}
	go l.cleanupLoop()
	return l
}

// Error logs one line for an error of the given kind from the given
// source (e.g. a component name), suppressing subsequent lines for the
// same (kind, source) pair within the configured interval. Suppressed
// occurrences are counted and folded into the next line that is
// actually emitted.
func (l *Logger) Error(kind models.ErrorKind, source string, err error) {
	key := bucketKey{kind: kind, source: source}

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{}
		l.buckets[key] = b
	}
	l.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if now.Sub(b.lastLogged) < l.minInterval {
		b.suppressed++
		return
	}

	if b.suppressed > 0 {
		log.Printf("[%s] %s: %v (suppressed %d similar in the last interval)", kind, source, err, b.suppressed)
	} else {
		log.Printf("[%s] %s: %v", kind, source, err)
	}
	b.suppressed = 0
	b.lastLogged = now
}

func (l *Logger) cleanupLoop() {
	ticker := time.NewTicker(cleanupIdleDuration)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-cleanupIdleDuration)
		l.mu.Lock()
		for key, b := range l.buckets {
			b.mu.Lock()
			idle := b.lastLogged.Before(cutoff)
			b.mu.Unlock()
			if idle {
				delete(l.buckets, key)
			}
		}
		l.mu.Unlock()
	}
}
