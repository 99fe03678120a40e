package contract

// Overlay is the PersistentCachedContractState of §3: a map from StateIndex
// to Value representing one execution's pending modifications. Reads that
// hit the overlay return the overlay value; reads that miss fall through to
// the committed base state. Writeback is atomic and type-checked.
type Overlay struct {
	base   *State
	writes map[StateIndex]Value
}

// NewOverlay returns an empty overlay reading through to base.
func NewOverlay(base *State) *Overlay {
	return &Overlay{base: base, writes: make(map[StateIndex]Value)}
}

// Get returns the overlay value at idx if present, otherwise the
// committed base value.
func (o *Overlay) Get(idx StateIndex) (Value, error) {
	if v, ok := o.writes[idx]; ok {
		return v, nil
	}
	return o.base.Get(idx)
}

// Set stages a type-checked, bounds-checked write into the overlay without
// touching the committed base state.
func (o *Overlay) Set(idx StateIndex, value Value) error {
	if value.Kind() != idx.valueKind() {
		return ErrTypeMismatch
	}
	var n int
	switch idx.Kind {
	case IdxU32:
		n = len(o.base.U32)
	case IdxU64:
		n = len(o.base.U64)
	case IdxF32:
		n = len(o.base.F32)
	case IdxF64:
		n = len(o.base.F64)
	case IdxMapping:
		n = len(o.base.Mappings)
	}
	if int(idx.I) >= n {
		return ErrIndexOutOfBounds
	}
	o.writes[idx] = value
	return nil
}

// IsEmpty reports whether this overlay has no staged writes.
func (o *Overlay) IsEmpty() bool { return len(o.writes) == 0 }

// Writes exposes the staged (index, value) pairs for inspection/composition.
func (o *Overlay) Writes() map[StateIndex]Value {
	return o.writes
}

// ChainOver composes this overlay on top of an older one sharing the same
// base: per-index, the newer (o's) write wins over the older's.
func (o *Overlay) ChainOver(older *Overlay) *Overlay {
	merged := NewOverlay(o.base)
	for idx, v := range older.writes {
		merged.writes[idx] = v
	}
	for idx, v := range o.writes {
		merged.writes[idx] = v
	}
	return merged
}

// Writeback applies every staged write to the base state. It is atomic in
// the sense that every write has already been type- and bounds-checked at
// Set time, so applying them can only fail if the base state changed shape
// since, which indicates store corruption rather than a recoverable
// condition.
func (o *Overlay) Writeback() error {
	for idx, v := range o.writes {
		if err := o.base.Set(idx, v); err != nil {
			return err
		}
	}
	return nil
}
