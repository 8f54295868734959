// Package testutil provides shared test helpers: an error channel wrapper
// for goroutine-heavy tests and generators for realistic snapshot fixtures.
//
// Calling t.Fatal or t.FailNow inside a goroutine only exits that goroutine,
// not the test, and the test hangs on its WaitGroup. Goroutines report
// through GoroutineTest instead and the failures surface in Wait.
package testutil

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// GoroutineTest collects errors from test goroutines.
//
// Usage:
//
//	gt := testutil.NewGoroutineTest(t)
//	defer gt.Wait()
//
//	gt.Go(func() error {
//	    if err := doWork(); err != nil {
//	        return fmt.Errorf("work failed: %w", err)
//	    }
//	    return nil
//	})
type GoroutineTest struct {
	t      *testing.T
	wg     sync.WaitGroup
	errors chan error
}

// NewGoroutineTest creates a new GoroutineTest helper.
func NewGoroutineTest(t *testing.T) *GoroutineTest {
	return &GoroutineTest{
		t:      t,
		errors: make(chan error, 100),
	}
}

// Go runs fn in a goroutine. A non-nil return is collected and reported
// by Wait.
func (gt *GoroutineTest) Go(fn func() error) {
	gt.wg.Add(1)
	go func() {
		defer gt.wg.Done()
		if err := fn(); err != nil {
			select {
			case gt.errors <- err:
			default:
				gt.t.Logf("error channel full, dropping: %v", err)
			}
		}
	}()
}

// Wait blocks until every goroutine started with Go has returned and fails
// the test if any of them reported an error. Call it with defer right after
// NewGoroutineTest.
func (gt *GoroutineTest) Wait() {
	gt.wg.Wait()
	close(gt.errors)

	var errs []error
	for err := range gt.errors {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		for i, err := range errs {
			gt.t.Errorf("goroutine error [%d]: %v", i+1, err)
		}
		gt.t.FailNow()
	}
}

// Eventually polls condition until it returns true or the timeout expires.
func Eventually(timeout, interval time.Duration, condition func() bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return nil
		}
		time.Sleep(interval)
	}
	return fmt.Errorf("condition not met within %v", timeout)
}
