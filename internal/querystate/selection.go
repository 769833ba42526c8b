package querystate

// SelectionMode tells how a Selection's id set is read.
type SelectionMode int

const (
	// Include means the set lists the selected rows.
	Include SelectionMode = iota
	// Exclude means every row of the remote result set is selected except
	// those in the set.
	Exclude
)

// Selection is a set of selected row ids that can express "all rows" without
// knowing them. The zero value is an empty inclusion selection.
type Selection[ID comparable] struct {
	mode SelectionMode
	ids  map[ID]struct{}
}

// Mode returns the active mode.
func (s *Selection[ID]) Mode() SelectionMode {
	return s.mode
}

// Select marks id as selected.
func (s *Selection[ID]) Select(id ID) {
	if s.mode == Exclude {
		delete(s.ids, id)
		return
	}
	s.add(id)
}

// Deselect marks id as not selected.
func (s *Selection[ID]) Deselect(id ID) {
	if s.mode == Exclude {
		s.add(id)
		return
	}
	delete(s.ids, id)
}

// Toggle flips the selection of id.
func (s *Selection[ID]) Toggle(id ID) {
	if s.Has(id) {
		s.Deselect(id)
	} else {
		s.Select(id)
	}
}

// SelectAll switches to exclusion mode with nothing excluded.
func (s *Selection[ID]) SelectAll() {
	s.mode = Exclude
	s.ids = nil
}

// Clear resets to an empty inclusion selection.
func (s *Selection[ID]) Clear() {
	s.mode = Include
	s.ids = nil
}

// Has reports whether id is selected.
func (s *Selection[ID]) Has(id ID) bool {
	_, listed := s.ids[id]
	if s.mode == Exclude {
		return !listed
	}
	return listed
}

// Empty reports whether nothing is selected, as far as can be told without
// the remote total.
func (s *Selection[ID]) Empty() bool {
	return s.mode == Include && len(s.ids) == 0
}

// Resolve returns the selected ids among pageIDs, keeping their order.
func (s *Selection[ID]) Resolve(pageIDs []ID) []ID {
	var out []ID
	for _, id := range pageIDs {
		if s.Has(id) {
			out = append(out, id)
		}
	}
	return out
}

// IDs returns the listed ids in no particular order: the selected ids in
// inclusion mode, the excluded ids otherwise.
func (s *Selection[ID]) IDs() []ID {
	out := make([]ID, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	return out
}

// Clone returns an independent copy.
func (s *Selection[ID]) Clone() Selection[ID] {
	c := Selection[ID]{mode: s.mode}
	if len(s.ids) > 0 {
		c.ids = make(map[ID]struct{}, len(s.ids))
		for id := range s.ids {
			c.ids[id] = struct{}{}
		}
	}
	return c
}

func (s *Selection[ID]) add(id ID) {
	if s.ids == nil {
		s.ids = make(map[ID]struct{})
	}
	s.ids[id] = struct{}{}
}
