package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("dial tcp: connection refused")
var errDomain = errors.New("insufficient credits")

func testPolicy(cfg Config) (*Policy, *[]time.Duration) {
	p := New(cfg, nil)
	var delays []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return p, &delays
}

func TestDoDisabledRunsOnce(t *testing.T) {
	p, _ := testPolicy(Config{Enabled: false})

	calls := 0
	err := p.Do(context.Background(), "op", func() error {
		calls++
		return errTransient
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, errTransient) {
		t.Errorf("err = %v, want original error", err)
	}
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	p, delays := testPolicy(Config{
		Enabled:           true,
		MaxAttempts:       5,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          1 * time.Second,
		BackoffMultiplier: 2,
	})

	calls := 0
	err := p.Do(context.Background(), "op", func() error {
		calls++
		if calls <= 3 {
			return errTransient
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}

	// 延迟序列：min(maxDelay, initial * multiplier^(k-1))
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	if len(*delays) != len(want) {
		t.Fatalf("delays = %v, want %v", *delays, want)
	}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Errorf("delay[%d] = %v, want %v", i, (*delays)[i], d)
		}
	}
}

func TestDoDelayCappedAtMax(t *testing.T) {
	p, delays := testPolicy(Config{
		Enabled:           true,
		MaxAttempts:       5,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          250 * time.Millisecond,
		BackoffMultiplier: 2,
	})

	_ = p.Do(context.Background(), "op", func() error { return errTransient })

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 250 * time.Millisecond, 250 * time.Millisecond}
	if len(*delays) != len(want) {
		t.Fatalf("delays = %v, want %v", *delays, want)
	}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Errorf("delay[%d] = %v, want %v", i, (*delays)[i], d)
		}
	}
}

func TestDoNonRetryablePropagatesImmediately(t *testing.T) {
	p, delays := testPolicy(Config{
		Enabled:           true,
		MaxAttempts:       5,
		InitialDelay:      10 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2,
	})

	calls := 0
	err := p.Do(context.Background(), "op", func() error {
		calls++
		return errDomain
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, errDomain) {
		t.Errorf("err = %v, want domain error", err)
	}
	if len(*delays) != 0 {
		t.Errorf("delays = %v, want none", *delays)
	}
}

func TestDoExhaustionReturnsLastError(t *testing.T) {
	p, _ := testPolicy(Config{
		Enabled:           true,
		MaxAttempts:       3,
		InitialDelay:      time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2,
	})

	calls := 0
	err := p.Do(context.Background(), "op", func() error {
		calls++
		return errTransient
	})

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !errors.Is(err, errTransient) {
		t.Errorf("err = %v, want last transient error", err)
	}
}

func TestRetryableClassification(t *testing.T) {
	p := New(Config{Enabled: true}, nil)

	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("connection reset by peer"), true},
		{errors.New("read tcp: i/o timeout"), true},
		{errors.New("Error 1040: Too many connections"), true},
		{errDomain, false},
		{errors.New("user not found"), false},
	}
	for _, tt := range tests {
		if got := p.Retryable(tt.err); got != tt.want {
			t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestCustomAllowList(t *testing.T) {
	p := New(Config{Enabled: true, RetryableErrors: []string{"flaky"}}, nil)

	if !p.Retryable(errors.New("FLAKY backend")) {
		t.Error("expected custom pattern to match case-insensitively")
	}
	if p.Retryable(errTransient) {
		t.Error("default patterns should be replaced by the custom list")
	}
}
