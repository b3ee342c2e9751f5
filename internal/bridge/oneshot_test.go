package bridge

import (
	"errors"
	"sync"
	"testing"
)

func TestOneshotResolveOnce(t *testing.T) {
	o := newOneshot[int]()
	o.resolve(1)
	o.resolve(2)
	o.reject(errors.New("too late"))

	<-o.Done()
	v, err := o.Result()
	if v != 1 || err != nil {
		t.Errorf("Result = %d, %v, want 1, nil", v, err)
	}
}

func TestOneshotReject(t *testing.T) {
	o := newOneshot[int]()
	cause := errors.New("dial failed")
	o.reject(cause)
	o.resolve(5)

	<-o.Done()
	v, err := o.Result()
	if v != 0 || err != cause {
		t.Errorf("Result = %d, %v, want 0, %v", v, err, cause)
	}
}

func TestOneshotFanOut(t *testing.T) {
	o := newOneshot[string]()

	var wg sync.WaitGroup
	results := make([]string, 10)
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-o.Done()
			results[i], _ = o.Result()
		}()
	}

	o.resolve("ready")
	wg.Wait()

	for i, r := range results {
		if r != "ready" {
			t.Errorf("waiter %d saw %q, want %q", i, r, "ready")
		}
	}
}
