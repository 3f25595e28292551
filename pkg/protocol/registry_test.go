package protocol

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/agora-at/agorat/pkg/payload"
	"github.com/agora-at/agorat/pkg/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "registry.db")
	s, err := store.New(dsn, "")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleProtocol(id string) Negotiated {
	return Negotiated{
		ID:          id,
		Version:     "1.0",
		Description: "structured post exchange for status updates",
		Schema: payload.Map(map[string]payload.Value{
			"fields": payload.List(payload.String("text")),
		}),
	}
}

func TestRegisterThenLookup(t *testing.T) {
	r := NewRegistry("agent", nil, nil)
	ctx := context.Background()

	p := sampleProtocol("p1")
	if err := r.Register(ctx, "post", p); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, ok := r.Lookup("post")
	if !ok {
		t.Fatal("Lookup should find registered protocol")
	}
	if !got.Equal(p) {
		t.Errorf("Lookup = %+v, want %+v", got, p)
	}
}

func TestRegisterLastWriteWins(t *testing.T) {
	r := NewRegistry("agent", nil, nil)
	ctx := context.Background()

	r.Register(ctx, "post", sampleProtocol("p1"))
	r.Register(ctx, "post", sampleProtocol("p2"))

	got, ok := r.Lookup("post")
	if !ok {
		t.Fatal("Lookup should find protocol")
	}
	if got.ID != "p2" {
		t.Errorf("ID = %q, want p2 (last write wins)", got.ID)
	}
}

func TestLookupAbsent(t *testing.T) {
	r := NewRegistry("agent", nil, nil)

	if _, ok := r.Lookup("unregistered"); ok {
		t.Error("Lookup on unregistered type should report absent")
	}
}

func TestRegisterRejectsEmptyType(t *testing.T) {
	r := NewRegistry("agent", nil, nil)

	if err := r.Register(context.Background(), "", sampleProtocol("p1")); err == nil {
		t.Error("empty message type should be rejected")
	}
}

func TestPersistedRoundTrip(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	r := NewRegistry("agent", st, nil)
	protos := map[string]Negotiated{
		"post":     sampleProtocol("p1"),
		"get_feed": sampleProtocol("p2"),
	}
	for mt, p := range protos {
		if err := r.Register(ctx, mt, p); err != nil {
			t.Fatalf("Register(%s): %v", mt, err)
		}
	}

	fresh := NewRegistry("agent", st, nil)
	if err := fresh.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	for mt, want := range protos {
		got, ok := fresh.Lookup(mt)
		if !ok {
			t.Fatalf("Lookup(%s) absent after reload", mt)
		}
		if !got.Equal(want) {
			t.Errorf("Lookup(%s) = %+v, want %+v", mt, got, want)
		}
	}
}

func TestUnregisterRemovesMapping(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	r := NewRegistry("agent", st, nil)
	if err := r.Register(ctx, "post", sampleProtocol("p1")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Unregister(ctx, "post"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if _, ok := r.Lookup("post"); ok {
		t.Error("Lookup should report absent after Unregister")
	}

	fresh := NewRegistry("agent", st, nil)
	if err := fresh.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := fresh.Lookup("post"); ok {
		t.Error("Unregister should also remove the persisted record")
	}

	// absent mapping is a no-op
	if err := r.Unregister(ctx, "never-registered"); err != nil {
		t.Errorf("Unregister on absent mapping: %v", err)
	}
}

func TestLoadSkipsCorruptRecords(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	r := NewRegistry("agent", st, nil)
	if err := r.Register(ctx, "post", sampleProtocol("p1")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	err := st.UpsertProtocol(ctx, &store.ProtocolRecord{
		AgentID:     "agent",
		MessageType: "broken",
		Record:      []byte(`{not json`),
	})
	if err != nil {
		t.Fatalf("UpsertProtocol: %v", err)
	}

	fresh := NewRegistry("agent", st, nil)
	if err := fresh.Load(ctx); err != nil {
		t.Fatalf("Load should not fail on a corrupt record: %v", err)
	}

	if _, ok := fresh.Lookup("post"); !ok {
		t.Error("valid record should survive a load with corrupt siblings")
	}
	if _, ok := fresh.Lookup("broken"); ok {
		t.Error("corrupt record should be skipped")
	}
}

func TestOnRegisterHook(t *testing.T) {
	r := NewRegistry("agent", nil, nil)

	var gotType string
	var gotID string
	r.OnRegister = func(messageType string, p Negotiated) {
		gotType = messageType
		gotID = p.ID
	}

	r.Register(context.Background(), "post", sampleProtocol("p1"))

	if gotType != "post" || gotID != "p1" {
		t.Errorf("hook saw (%q, %q), want (post, p1)", gotType, gotID)
	}
}

func TestMatch(t *testing.T) {
	r := NewRegistry("agent", nil, nil)
	ctx := context.Background()

	r.Register(ctx, "archive", Negotiated{
		ID: "pa", Version: "1.0",
		Description: "querying internet archive materials with filtered results",
	})
	r.Register(ctx, "post", Negotiated{
		ID: "pb", Version: "1.0",
		Description: "posting short status updates to the social network",
	})

	mt, p, ok := r.Match("search the internet archive for materials")
	if !ok {
		t.Fatal("Match should find an overlapping description")
	}
	if mt != "archive" || p.ID != "pa" {
		t.Errorf("Match = (%q, %q)", mt, p.ID)
	}

	if _, _, ok := r.Match("zzz qqq"); ok {
		t.Error("Match with no overlap should report no result")
	}
}
