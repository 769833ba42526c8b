package querystate

import (
	"net/url"
	"sync"
)

// Location is the shareable query string a manager mirrors its state into.
type Location interface {
	Query() url.Values
	SetQuery(url.Values)
}

// MemoryLocation is a Location for a fixed path. The console keeps one per
// list view and pushes its URL to the browser after every change.
type MemoryLocation struct {
	path string

	mu     sync.Mutex
	values url.Values
}

// NewLocation creates an empty location for path.
func NewLocation(path string) *MemoryLocation {
	return &MemoryLocation{path: path, values: url.Values{}}
}

// Query returns a copy of the current query values.
func (l *MemoryLocation) Query() url.Values {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneValues(l.values)
}

// SetQuery replaces the query values.
func (l *MemoryLocation) SetQuery(v url.Values) {
	l.mu.Lock()
	l.values = cloneValues(v)
	l.mu.Unlock()
}

// URL returns the path with its encoded query string.
func (l *MemoryLocation) URL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.values) == 0 {
		return l.path
	}
	return l.path + "?" + l.values.Encode()
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
