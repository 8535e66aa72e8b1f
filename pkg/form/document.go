package form

import (
	"sort"
	"sync"
)

// FieldID identifies one form field. Order of IDs defines fill sequence.
type FieldID string

// Document is the target a guided fill writes into. Implementations wrap
// whatever field tree the hosting UI uses; writes must trigger any listeners
// that tree has.
type Document interface {
	// Lookup reports whether the field exists in the document.
	Lookup(id FieldID) bool
	// Write sets the field value and fires change listeners.
	Write(id FieldID, value string) bool
	// Value returns the current field value.
	Value(id FieldID) (string, bool)
	// Label resolves a human-friendly label, falling back to the raw id.
	Label(id FieldID) string
}

// Highlighter marks the active field during a guided fill. At most one field
// is highlighted at a time.
type Highlighter interface {
	Highlight(id FieldID)
	ClearHighlight()
}

// ChangeListener observes committed writes.
type ChangeListener func(id FieldID, value string)

// MemoryDocument is an in-memory Document with labels, change listeners and
// highlight tracking.
type MemoryDocument struct {
	mu          sync.Mutex
	values      map[FieldID]string
	labels      map[FieldID]string
	known       map[FieldID]bool
	listeners   []ChangeListener
	highlighted FieldID
}

func NewMemoryDocument() *MemoryDocument {
	return &MemoryDocument{
		values: make(map[FieldID]string),
		labels: make(map[FieldID]string),
		known:  make(map[FieldID]bool),
	}
}

// AddField registers a field with an optional label.
func (d *MemoryDocument) AddField(id FieldID, label string) {
	d.mu.Lock()
	d.known[id] = true
	if label != "" {
		d.labels[id] = label
	}
	d.mu.Unlock()
}

// AddListener registers a change listener fired on every write.
func (d *MemoryDocument) AddListener(fn ChangeListener) {
	d.mu.Lock()
	d.listeners = append(d.listeners, fn)
	d.mu.Unlock()
}

func (d *MemoryDocument) Lookup(id FieldID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.known[id]
}

func (d *MemoryDocument) Write(id FieldID, value string) bool {
	d.mu.Lock()
	if !d.known[id] {
		d.mu.Unlock()
		return false
	}
	d.values[id] = value
	listeners := make([]ChangeListener, len(d.listeners))
	copy(listeners, d.listeners)
	d.mu.Unlock()

	for _, fn := range listeners {
		fn(id, value)
	}
	return true
}

func (d *MemoryDocument) Value(id FieldID) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.values[id]
	return v, ok
}

func (d *MemoryDocument) Label(id FieldID) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if label, ok := d.labels[id]; ok {
		return label
	}
	return string(id)
}

func (d *MemoryDocument) Highlight(id FieldID) {
	d.mu.Lock()
	d.highlighted = id
	d.mu.Unlock()
}

func (d *MemoryDocument) ClearHighlight() {
	d.mu.Lock()
	d.highlighted = ""
	d.mu.Unlock()
}

// Highlighted returns the currently highlighted field, empty when none.
func (d *MemoryDocument) Highlighted() FieldID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.highlighted
}

// Fields returns the known field ids in sorted order.
func (d *MemoryDocument) Fields() []FieldID {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]FieldID, 0, len(d.known))
	for id := range d.known {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
