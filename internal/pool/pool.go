// Package pool bounds concurrency against one logical upstream by limiting
// the number of live connections and recycling them across requests through a
// checkout/checkin protocol.
package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrUnavailable is returned when no member becomes free within the checkout
// wait. Callers must surface it immediately rather than retry internally.
var ErrUnavailable = errors.New("pool: no connection available")

// ErrClosed is returned for checkouts against a stopped pool.
var ErrClosed = errors.New("pool: closed")

// Member is anything the pool can own and discard.
type Member interface {
	Close() error
}

// Factory creates a new member on demand, up to the pool's capacity.
type Factory func(ctx context.Context) (Member, error)

// Lease is one exclusive grant of a member. It is valid from Checkout until
// the single matching Checkin.
type Lease struct {
	id       string
	member   Member
	mu       sync.Mutex
	returned bool
}

// ID returns the lease token, unique per checkout.
func (l *Lease) ID() string { return l.id }

// Member returns the leased connection.
func (l *Lease) Member() Member { return l.member }

// Pool is a bounded set of reusable members. The checkout/checkin protocol is
// the only access path; a member is never held by two callers at once.
type Pool struct {
	name    string
	factory Factory
	idle    chan Member
	slots   chan struct{}

	mu     sync.Mutex
	closed bool
}

// New creates a pool that will hold at most size members, creating them
// through factory as demand requires. A non-positive size defaults to 10.
func New(name string, factory Factory, size int) *Pool {
	if size <= 0 {
		size = 10
	}
	p := &Pool{
		name:    name,
		factory: factory,
		idle:    make(chan Member, size),
		slots:   make(chan struct{}, size),
	}
	for i := 0; i < size; i++ {
		p.slots <- struct{}{}
	}
	return p
}

// Name returns the pool identifier.
func (p *Pool) Name() string { return p.name }

// Checkout leases a member, waiting up to wait for one to become available.
// An idle member is preferred; otherwise a new one is created while capacity
// remains. Returns ErrUnavailable when the wait expires and the context error
// when ctx is cancelled first.
func (p *Pool) Checkout(ctx context.Context, wait time.Duration) (*Lease, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.mu.Unlock()

	select {
	case m := <-p.idle:
		return newLease(m), nil
	default:
	}

	select {
	case <-p.slots:
		return p.create(ctx)
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case m := <-p.idle:
		return newLease(m), nil
	case <-p.slots:
		return p.create(ctx)
	case <-timer.C:
		return nil, fmt.Errorf("%w after %v", ErrUnavailable, wait)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) create(ctx context.Context) (*Lease, error) {
	m, err := p.factory(ctx)
	if err != nil {
		p.slots <- struct{}{}
		return nil, err
	}
	return newLease(m), nil
}

func newLease(m Member) *Lease {
	return &Lease{id: ulid.Make().String(), member: m}
}

// Checkin releases a lease, exactly once per checkout. A healthy member goes
// back to the idle set; an unhealthy one is closed and its capacity slot
// freed so a replacement can be created on demand. A second checkin of the
// same lease is a programming error.
func (p *Pool) Checkin(l *Lease, healthy bool) error {
	if l == nil {
		return errors.New("pool: nil lease")
	}
	l.mu.Lock()
	if l.returned {
		l.mu.Unlock()
		return fmt.Errorf("pool: lease %s already checked in", l.id)
	}
	l.returned = true
	l.mu.Unlock()

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if !healthy || closed {
		err := l.member.Close()
		p.slots <- struct{}{}
		return err
	}

	p.idle <- l.member
	return nil
}

// Close stops the pool, closing all idle members. Members still checked out
// are closed when their leases are checked in.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	var errs []string
	for {
		select {
		case m := <-p.idle:
			if err := m.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		default:
			if len(errs) > 0 {
				return fmt.Errorf("pool close errors: %s", strings.Join(errs, "; "))
			}
			return nil
		}
	}
}
