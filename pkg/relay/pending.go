// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Pending is the result of an asynchronous relay operation. It resolves
// exactly once; after that Err and Wait return the same value.
type Pending struct {
	done chan struct{}
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) resolve(err error) {
	p.err = err
	close(p.done)
}

// Completed returns an already successful Pending.
func Completed() *Pending {
	p := newPending()
	p.resolve(nil)
	return p
}

// Failed returns an already failed Pending.
func Failed(err error) *Pending {
	p := newPending()
	p.resolve(err)
	return p
}

// Go runs fn on a new goroutine. A panic inside fn fails the Pending with
// ErrSendPanic instead of crashing the process.
func Go(fn func() error) *Pending {
	p := newPending()
	go func() {
		p.resolve(call(fn))
	}()
	return p
}

func call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSendPanic, r)
		}
	}()
	return fn()
}

// Join resolves once every member has resolved. Failures are collected into a
// *multierror.Error; one failing member never short-circuits the others.
func Join(members ...*Pending) *Pending {
	switch len(members) {
	case 0:
		return Completed()
	case 1:
		return members[0]
	}
	p := newPending()
	go func() {
		var (
			mu     sync.Mutex
			wg     sync.WaitGroup
			result *multierror.Error
		)
		for _, member := range members {
			wg.Add(1)
			go func(member *Pending) {
				defer wg.Done()
				<-member.done
				if member.err != nil {
					mu.Lock()
					result = multierror.Append(result, member.err)
					mu.Unlock()
				}
			}(member)
		}
		wg.Wait()
		p.resolve(result.ErrorOrNil())
	}()
	return p
}

// Done is closed when the operation has finished.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the operation finishes or ctx is done. Giving up on ctx
// does not cancel the underlying work.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the result without blocking; it is nil while still pending.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}
