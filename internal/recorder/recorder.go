// Package recorder implements the bounded ring buffer of observed
// request/response transactions.
package recorder

import (
	"strconv"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/r3e-network/debugproxy/infrastructure/metrics"
	"github.com/r3e-network/debugproxy/internal/model"
)

// DefaultCapacity is the Recorder's default ring buffer size.
const DefaultCapacity = 2000

// Recorder is a bounded, append-mostly log of RequestRecords, addressable
// by id. Re-inserting an existing id updates it in place; this is how a
// flow decision and then a response attach to an already-recorded request.
// A single mutex serializes all access, per the engine's concurrency model.
type Recorder struct {
	mu       sync.Mutex
	capacity int
	entries  []*model.RequestRecord // ring buffer, oldest at head
	index    map[string]int         // id -> slot in entries
	head     int                    // next slot to write when full
	size     int                    // number of live entries
	metrics  *metrics.Metrics
}

// SetMetrics attaches a Metrics sink. Nil (the default) disables recording.
func (r *Recorder) SetMetrics(m *metrics.Metrics) {
	r.mu.Lock()
	r.metrics = m
	r.mu.Unlock()
}

func (r *Recorder) reportSizeLocked() {
	if r.metrics != nil {
		r.metrics.RecorderSize.Set(float64(r.size))
	}
}

// New constructs a Recorder with the given capacity (DefaultCapacity if <= 0).
func New(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Recorder{
		capacity: capacity,
		entries:  make([]*model.RequestRecord, capacity),
		index:    make(map[string]int, capacity),
	}
}

// Upsert inserts or updates the record with the given id. Updating an
// existing id overwrites its slot in place and does not advance the ring.
func (r *Recorder) Upsert(rec *model.RequestRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slot, ok := r.index[rec.ID]; ok {
		r.entries[slot] = rec
		return
	}

	slot := r.head
	if evicted := r.entries[slot]; evicted != nil {
		delete(r.index, evicted.ID)
	} else {
		r.size++
	}
	r.entries[slot] = rec
	r.index[rec.ID] = slot
	r.head = (r.head + 1) % r.capacity
	r.reportSizeLocked()
}

// Get returns the record for id, if present.
func (r *Recorder) Get(id string) (*model.RequestRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return r.entries[slot], true
}

// Count returns the number of live entries.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Clear empties the buffer.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make([]*model.RequestRecord, r.capacity)
	r.index = make(map[string]int, r.capacity)
	r.head = 0
	r.size = 0
	r.reportSizeLocked()
}

// List returns every live record, newest first.
func (r *Recorder) List() []*model.RequestRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orderedLocked()
}

// orderedLocked returns live entries newest-first. Caller must hold r.mu.
func (r *Recorder) orderedLocked() []*model.RequestRecord {
	out := make([]*model.RequestRecord, 0, r.size)
	// Walking backwards from the slot just before head visits the most
	// recently written entry first.
	for i := 0; i < r.capacity; i++ {
		slot := (r.head - 1 - i + 2*r.capacity) % r.capacity
		if rec := r.entries[slot]; rec != nil {
			out = append(out, rec)
		}
		if len(out) == r.size {
			break
		}
	}
	return out
}

// Filter narrows a List query. Empty fields are ignored. HostSubstring and
// URLSubstring are case-insensitive substring matches.
type Filter struct {
	Method        string
	HostSubstring string
	Status        int
	URLSubstring  string
}

// Query returns every live record matching filter, newest first.
func (r *Recorder) Query(filter Filter) []*model.RequestRecord {
	r.mu.Lock()
	all := r.orderedLocked()
	r.mu.Unlock()

	out := make([]*model.RequestRecord, 0, len(all))
	for _, rec := range all {
		if matches(rec, filter) {
			out = append(out, rec)
		}
	}
	return out
}

func matches(rec *model.RequestRecord, filter Filter) bool {
	if filter.Method != "" && (rec.Request == nil || !strings.EqualFold(rec.Request.Method, filter.Method)) {
		return false
	}
	if filter.HostSubstring != "" {
		if rec.Request == nil || !strings.Contains(strings.ToLower(rec.Request.Host), strings.ToLower(filter.HostSubstring)) {
			return false
		}
	}
	if filter.Status != 0 {
		if rec.Response == nil || rec.Response.StatusCode != filter.Status {
			return false
		}
	}
	if filter.URLSubstring != "" {
		needle := strings.ToLower(filter.URLSubstring)
		inURL := rec.Request != nil && strings.Contains(strings.ToLower(rec.Request.URL()), needle)
		var reqBody, respBody string
		if rec.Request != nil {
			reqBody = rec.Request.Body
		}
		if rec.Response != nil {
			respBody = rec.Response.Body
		}
		if !inURL && !bodyContains(reqBody, needle) && !bodyContains(respBody, needle) {
			return false
		}
	}
	return true
}

// bodyContains performs a free-text search over a recorded body. When the
// body parses as JSON, the search runs over gjson's normalized raw form so
// whitespace differences in the stored text don't hide a match.
func bodyContains(body, needle string) bool {
	if body == "" {
		return false
	}
	if gjson.Valid(body) {
		body = gjson.Parse(body).Raw
	}
	return strings.Contains(strings.ToLower(body), needle)
}

// ParseStatus parses a status filter query parameter, returning 0 (no
// filter) if s is empty or invalid.
func ParseStatus(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
