// Package flowdecode parses NetFlow v5, NetFlow v9, and IPFIX packets
// into models.FlowRecord values, caching v9/IPFIX templates per
// exporter so template-based data records can be decoded once their
// layout is known.
package flowdecode

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// TemplateKey identifies one cached template: the exporter address, its
// source id (v9) or observation domain id (IPFIX), and the template id
// itself. An exporter restart mints a new source id, so the old
// templates age out naturally rather than being explicitly flushed.
type TemplateKey struct {
	ExporterAddr string
	SourceID     uint32
	TemplateID   uint16
}

// FieldSpec is one field in a template: its (enterprise id, field id)
// and its encoded byte length.
type FieldSpec struct {
	EnterpriseID uint32
	FieldID      uint16
	Length       uint16
}

// Template is a cached field layout for a v9/IPFIX template id.
type Template struct {
	Fields []FieldSpec
}

type templateEntry struct {
	tmpl    Template
	expires time.Time
}

// TemplateCache is an LRU cache of templates per exporter with a
// configurable time-to-live, swept lazily on lookup. The LRU base
// bounds memory; the TTL layer evicts stale entries even under light
// load.
type TemplateCache struct {
	mu   sync.Mutex
	ttl  time.Duration
	lru  *lru.Cache[TemplateKey, templateEntry]
}

// NewTemplateCache builds a cache holding up to capacity entries
// per-process (shared across all exporters, since the key already
// scopes by exporter), each entry expiring ttl after insertion.
func NewTemplateCache(capacity int, ttl time.Duration) *TemplateCache {
	c, _ := lru.New[TemplateKey, templateEntry](capacity)
	return &TemplateCache{lru: c, ttl: ttl}
}

// Put caches (or refreshes) a template.
func (c *TemplateCache) Put(key TemplateKey, tmpl Template) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, templateEntry{tmpl: tmpl, expires: time.Now().Add(c.ttl)})
}

// Get returns the cached template for key, if present and unexpired.
func (c *TemplateCache) Get(key TemplateKey) (Template, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.lru.Get(key)
	if !ok {
		return Template{}, false
	}
	if time.Now().After(entry.expires) {
		c.lru.Remove(key)
		return Template{}, false
	}
	return entry.tmpl, true
}

// Len reports the current entry count, for metrics.
func (c *TemplateCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
