package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDo_Success(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Multiplier:  2.0,
	}

	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_AllAttemptsFail(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Multiplier:  2.0,
	}

	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		return errors.New("persistent error")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, attempts)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	ctx := context.Background()
	cfg := Config{MaxAttempts: 5, BaseDelay: time.Millisecond, Multiplier: 2.0}

	attempts := 0
	base := errors.New("backend gone")
	err := Do(ctx, cfg, func() error {
		attempts++
		return NonRetryable(base)
	})

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, IsNonRetryable(err))
	assert.True(t, errors.Is(err, base))
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{
		MaxAttempts: 5,
		BaseDelay:   50 * time.Millisecond,
		Multiplier:  2.0,
	}

	attempts := 0
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, cfg, func() error {
		attempts++
		return errors.New("error")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "retry cancelled")
	assert.Less(t, attempts, 5)
}

func TestDelay_AttemptIndexedGrowth(t *testing.T) {
	// 1s base with multiplier 2 backs off 2s, then 4s.
	cfg := Config{BaseDelay: time.Second, Multiplier: 2.0}

	assert.Equal(t, 2*time.Second, cfg.Delay(1))
	assert.Equal(t, 4*time.Second, cfg.Delay(2))
	assert.Equal(t, 8*time.Second, cfg.Delay(3))
}

func TestDelay_CappedByMaxDelay(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, Multiplier: 2.0, MaxDelay: 5 * time.Second}

	assert.Equal(t, 2*time.Second, cfg.Delay(1))
	assert.Equal(t, 4*time.Second, cfg.Delay(2))
	assert.Equal(t, 5*time.Second, cfg.Delay(3))
	assert.Equal(t, 5*time.Second, cfg.Delay(10))
}

func TestDoWithResult(t *testing.T) {
	ctx := context.Background()
	cfg := Config{MaxAttempts: 2, BaseDelay: time.Millisecond, Multiplier: 2.0}

	attempts := 0
	result, err := DoWithResult(ctx, cfg, func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", errors.New("not yet")
		}
		return "0,Done", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "0,Done", result)
	assert.Equal(t, 2, attempts)
}
