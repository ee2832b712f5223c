package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type mockConn struct {
	closed bool
}

func (m *mockConn) Close() error {
	m.closed = true
	return nil
}

func countingFactory(created *atomic.Int32) Factory {
	return func(ctx context.Context) (Member, error) {
		created.Add(1)
		return &mockConn{}, nil
	}
}

func TestPool_CheckoutCheckinReuse(t *testing.T) {
	var created atomic.Int32
	p := New("test", countingFactory(&created), 5)
	defer p.Close()

	lease1, err := p.Checkout(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}
	if lease1.ID() == "" {
		t.Fatal("Expected non-empty lease ID")
	}
	member := lease1.Member()

	if err := p.Checkin(lease1, true); err != nil {
		t.Fatalf("Checkin failed: %v", err)
	}

	lease2, err := p.Checkout(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}
	if lease2.Member() != member {
		t.Error("Expected healthy member to be reused")
	}
	if lease2.ID() == lease1.ID() {
		t.Error("Expected a fresh lease ID per checkout")
	}
	if created.Load() != 1 {
		t.Errorf("Expected 1 member created, got %d", created.Load())
	}
	p.Checkin(lease2, true)
}

func TestPool_UnhealthyCheckinDiscardsAndReplaces(t *testing.T) {
	var created atomic.Int32
	p := New("test", countingFactory(&created), 1)
	defer p.Close()

	lease, err := p.Checkout(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}
	bad := lease.Member().(*mockConn)

	if err := p.Checkin(lease, false); err != nil {
		t.Fatalf("Checkin failed: %v", err)
	}
	if !bad.closed {
		t.Error("Expected unhealthy member to be closed")
	}

	// Capacity was freed, so a replacement can be created.
	lease2, err := p.Checkout(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Checkout after discard failed: %v", err)
	}
	if lease2.Member() == bad {
		t.Error("Expected a new member, got the discarded one")
	}
	if created.Load() != 2 {
		t.Errorf("Expected 2 members created, got %d", created.Load())
	}
	p.Checkin(lease2, true)
}

func TestPool_CheckoutTimeout(t *testing.T) {
	var created atomic.Int32
	p := New("test", countingFactory(&created), 1)
	defer p.Close()

	lease, err := p.Checkout(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}

	_, err = p.Checkout(context.Background(), 50*time.Millisecond)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Expected ErrUnavailable, got %v", err)
	}

	p.Checkin(lease, true)
}

func TestPool_CheckoutWakesOnCheckin(t *testing.T) {
	var created atomic.Int32
	p := New("test", countingFactory(&created), 1)
	defer p.Close()

	lease, err := p.Checkout(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		l, err := p.Checkout(context.Background(), 2*time.Second)
		if err == nil {
			p.Checkin(l, true)
		}
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := p.Checkin(lease, true); err != nil {
		t.Fatalf("Checkin failed: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("Waiting checkout failed: %v", err)
	}
}

func TestPool_DoubleCheckin(t *testing.T) {
	var created atomic.Int32
	p := New("test", countingFactory(&created), 2)
	defer p.Close()

	lease, err := p.Checkout(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}
	if err := p.Checkin(lease, true); err != nil {
		t.Fatalf("First checkin failed: %v", err)
	}
	if err := p.Checkin(lease, true); err == nil {
		t.Fatal("Expected error on double checkin")
	}
}

func TestPool_CapacityBoundUnderConcurrency(t *testing.T) {
	const capacity = 4
	const requests = 40

	var created atomic.Int32
	var inUse atomic.Int32
	var maxInUse atomic.Int32

	p := New("test", countingFactory(&created), capacity)
	defer p.Close()

	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := p.Checkout(context.Background(), 5*time.Second)
			if err != nil {
				t.Errorf("Checkout failed: %v", err)
				return
			}
			n := inUse.Add(1)
			for {
				max := maxInUse.Load()
				if n <= max || maxInUse.CompareAndSwap(max, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inUse.Add(-1)
			p.Checkin(lease, true)
		}()
	}
	wg.Wait()

	if maxInUse.Load() > capacity {
		t.Errorf("Observed %d concurrent leases, capacity is %d", maxInUse.Load(), capacity)
	}
	if created.Load() > capacity {
		t.Errorf("Created %d members, capacity is %d", created.Load(), capacity)
	}
}

func TestPool_FactoryErrorFreesSlot(t *testing.T) {
	fail := true
	factory := func(ctx context.Context) (Member, error) {
		if fail {
			return nil, errors.New("connect refused")
		}
		return &mockConn{}, nil
	}

	p := New("test", factory, 1)
	defer p.Close()

	if _, err := p.Checkout(context.Background(), time.Second); err == nil {
		t.Fatal("Expected factory error")
	}

	// The slot must have been released, otherwise this checkout starves.
	fail = false
	lease, err := p.Checkout(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Checkout after factory error failed: %v", err)
	}
	p.Checkin(lease, true)
}

func TestPool_Close(t *testing.T) {
	var created atomic.Int32
	p := New("test", countingFactory(&created), 2)

	lease, err := p.Checkout(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}
	idle, err := p.Checkout(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}
	idleMember := idle.Member().(*mockConn)
	p.Checkin(idle, true)

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !idleMember.closed {
		t.Error("Expected idle member to be closed")
	}

	if _, err := p.Checkout(context.Background(), time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("Expected ErrClosed, got %v", err)
	}

	// A lease returned after Close gets its member closed too.
	held := lease.Member().(*mockConn)
	if err := p.Checkin(lease, true); err != nil {
		t.Fatalf("Checkin after close failed: %v", err)
	}
	if !held.closed {
		t.Error("Expected checked-out member to be closed on late checkin")
	}
}
