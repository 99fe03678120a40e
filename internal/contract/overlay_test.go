package contract

import "testing"

func TestOverlayReadThrough(t *testing.T) {
	s := NewState(2, 0, 0, 0, 0)
	s.U32[0] = 7
	o := NewOverlay(s)

	v, err := o.Get(U32Index(0))
	if err != nil || v.Bits() != 7 {
		t.Fatalf("expected read-through to base, got %v err=%v", v, err)
	}

	if err := o.Set(U32Index(1), U32(42)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err = o.Get(U32Index(1))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got, _ := v.AsU32()
	if got != 42 {
		t.Fatalf("expected overlay value 42, got %d", got)
	}
	// base unaffected until writeback
	if s.U32[1] != 0 {
		t.Fatalf("expected base untouched before writeback")
	}
}

func TestOverlaySetTypeMismatch(t *testing.T) {
	s := NewState(1, 0, 0, 0, 0)
	o := NewOverlay(s)
	if err := o.Set(U32Index(0), U64(1)); err == nil {
		t.Fatalf("expected type mismatch error")
	}
}

func TestOverlayWritebackAtomic(t *testing.T) {
	s := NewState(2, 0, 0, 0, 0)
	o := NewOverlay(s)
	o.writes[U32Index(0)] = U32(10)
	o.writes[U32Index(1)] = U32(20)
	if err := o.Writeback(); err != nil {
		t.Fatalf("Writeback: %v", err)
	}
	if s.U32[0] != 10 || s.U32[1] != 20 {
		t.Fatalf("writeback did not apply, got %v", s.U32)
	}
}

func TestOverlayChainOverNewerWins(t *testing.T) {
	s := NewState(1, 0, 0, 0, 0)
	older := NewOverlay(s)
	older.writes[U32Index(0)] = U32(1)
	newer := NewOverlay(s)
	newer.writes[U32Index(0)] = U32(2)

	merged := newer.ChainOver(older)
	v, _ := merged.Get(U32Index(0))
	got, _ := v.AsU32()
	if got != 2 {
		t.Fatalf("expected newer overlay to win, got %d", got)
	}
}

func TestMappingMissingKey(t *testing.T) {
	s := NewState(0, 0, 0, 0, 1)
	_, err := s.Get(MappingIndex(0, 5))
	if err == nil {
		t.Fatalf("expected missing mapping key error")
	}
}
