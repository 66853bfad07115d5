package registry

import "testing"

func TestTableRegisterAndLookup(t *testing.T) {
	tbl := NewTable[string]()
	id := tbl.Register("server_request", "handles an inbound request")
	if id != 0 {
		t.Fatalf("expected first registration to get tag 0, got %d", id)
	}
	got, ok := tbl.Lookup("server_request")
	if !ok || got != id {
		t.Fatalf("lookup mismatch: got (%d,%v), want (%d,true)", got, ok, id)
	}
	if tbl.At(id) != "handles an inbound request" {
		t.Fatalf("At(%d) = %q", id, tbl.At(id))
	}
	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tbl.Len())
	}
}

func TestTableDuplicatePanics(t *testing.T) {
	tbl := NewTable[int]()
	tbl.Register("a", 1)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	tbl.Register("a", 2)
}

func TestProtocolRegistration(t *testing.T) {
	p := NewProtocol("test_proto_registration")
	p.State.Register("free", State{Name: "free"})
	p.State.Register("waiting", State{Name: "waiting"})
	p.Action.Register("accept", Action{Name: "accept"})

	id := RegisterProtocol(p)
	found, ok := LookupProtocol("test_proto_registration")
	if !ok || found != p {
		t.Fatalf("LookupProtocol failed: ok=%v found=%v", ok, found)
	}
	_ = id

	if found.State.Len() != 2 {
		t.Fatalf("State.Len() = %d, want 2", found.State.Len())
	}
	stateID, ok := found.State.Lookup("waiting")
	if !ok {
		t.Fatal("expected to find waiting state")
	}
	if found.State.At(stateID).Name != "waiting" {
		t.Fatalf("unexpected state at tag %d: %+v", stateID, found.State.At(stateID))
	}
}
