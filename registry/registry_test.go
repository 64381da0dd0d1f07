package registry_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/xraph/chatrelay/registry"
)

type fakeChannel struct {
	mu     sync.Mutex
	sent   [][]byte
	closed string
	err    error
}

func (f *fakeChannel) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeChannel) Close(reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = reason
	return nil
}

func (f *fakeChannel) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestInsertIsKeyedByIdentity(t *testing.T) {
	r := registry.New()

	first := &fakeChannel{}
	second := &fakeChannel{}

	if _, replaced := r.Insert(registry.Connection{UserName: "alice", Channel: first}); replaced {
		t.Fatal("first insert should not replace")
	}
	if _, replaced := r.Insert(registry.Connection{UserName: "alice", Channel: first}); replaced {
		t.Fatal("re-inserting the same channel should not report a replacement")
	}

	prev, replaced := r.Insert(registry.Connection{UserName: "alice", Channel: second})
	if !replaced || prev.Channel != first {
		t.Fatalf("expected first channel to be replaced, got %+v %v", prev, replaced)
	}

	if r.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", r.Len())
	}
	c, ok := r.Lookup("alice")
	if !ok || c.Channel != second {
		t.Fatal("lookup should return the last registered channel")
	}
}

func TestRemoveMissing(t *testing.T) {
	r := registry.New()

	if _, err := r.Remove("ghost"); !errors.Is(err, registry.ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}
}

func TestReleaseByChannel(t *testing.T) {
	r := registry.New()

	old := &fakeChannel{}
	cur := &fakeChannel{}
	r.Insert(registry.Connection{UserName: "alice", Channel: old})
	r.Insert(registry.Connection{UserName: "alice", Channel: cur})

	// The evicted channel no longer owns an identity.
	if _, err := r.Release(old); !errors.Is(err, registry.ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound for evicted channel, got %v", err)
	}
	if r.Len() != 1 {
		t.Fatal("releasing an evicted channel must not remove the current entry")
	}

	c, err := r.Release(cur)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if c.UserName != "alice" {
		t.Fatalf("released %q", c.UserName)
	}
	if r.Len() != 0 {
		t.Fatal("registry should be empty")
	}
}

func TestBroadcastContinuesPastFailures(t *testing.T) {
	r := registry.New()

	const n = 5
	chans := make([]*fakeChannel, n)
	for i := range chans {
		chans[i] = &fakeChannel{}
		if i == 2 {
			chans[i].err = errors.New("broken pipe")
		}
		r.Insert(registry.Connection{UserName: fmt.Sprintf("user-%d", i), Channel: chans[i]})
	}

	attempted, err := r.Broadcast([]byte("hello"))
	if attempted != n {
		t.Fatalf("attempted %d sends, want %d", attempted, n)
	}
	if err == nil {
		t.Fatal("expected the failed send to be reported")
	}

	for i, ch := range chans {
		want := 1
		if i == 2 {
			want = 0
		}
		if ch.count() != want {
			t.Errorf("channel %d received %d payloads, want %d", i, ch.count(), want)
		}
	}
}

func TestSendTo(t *testing.T) {
	r := registry.New()

	alice := &fakeChannel{}
	bob := &fakeChannel{}
	r.Insert(registry.Connection{UserName: "alice", Channel: alice})
	r.Insert(registry.Connection{UserName: "bob", Channel: bob})

	if err := r.SendTo("bob", []byte("private")); err != nil {
		t.Fatalf("SendTo: %v", err)
	}
	if alice.count() != 0 || bob.count() != 1 {
		t.Fatalf("alice=%d bob=%d", alice.count(), bob.count())
	}

	if err := r.SendTo("carol", []byte("x")); !errors.Is(err, registry.ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}

	bob.err = errors.New("gone")
	if err := r.SendTo("bob", []byte("x")); err == nil {
		t.Fatal("expected channel failure to surface")
	}
}

func TestCloseAll(t *testing.T) {
	r := registry.New()

	a := &fakeChannel{}
	b := &fakeChannel{}
	r.Insert(registry.Connection{UserName: "a", Channel: a})
	r.Insert(registry.Connection{UserName: "b", Channel: b})

	r.CloseAll("shutdown")

	if r.Len() != 0 {
		t.Fatal("registry should be empty after CloseAll")
	}
	if a.closed != "shutdown" || b.closed != "shutdown" {
		t.Fatal("every channel should be closed")
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := registry.New()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ch := &fakeChannel{}
			name := fmt.Sprintf("user-%d", i%10)
			r.Insert(registry.Connection{UserName: name, Channel: ch})
			r.Broadcast([]byte("x")) //nolint:errcheck // counted below
			r.Lookup(name)
			if i%3 == 0 {
				r.Release(ch) //nolint:errcheck // may race with re-registration
			}
		}(i)
	}
	wg.Wait()

	if r.Len() > 10 {
		t.Fatalf("expected at most one entry per identity, got %d", r.Len())
	}
}
