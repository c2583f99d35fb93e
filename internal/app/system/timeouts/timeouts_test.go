package timeouts_test

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/promptshelf/internal/app/system/timeouts"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestConfigure_IgnoresZero(t *testing.T) {
	t.Cleanup(timeouts.Reset)

	timeouts.Configure(timeouts.Config{Short: 7 * time.Second})
	got := timeouts.Current()
	want := timeouts.Config{Ping: timeouts.DefaultPing, Short: 7 * time.Second, Medium: timeouts.DefaultMedium}
	if got != want {
		t.Errorf("Current() = %+v, want %+v", got, want)
	}

	timeouts.Reset()
	if timeouts.Short() != timeouts.DefaultShort {
		t.Errorf("Short after Reset = %v", timeouts.Short())
	}
}

func TestWithTimeout_LogsOnDeadline(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	log := zap.New(core)

	ctx, cancel := timeouts.WithTimeout(context.Background(), time.Millisecond, log, "slow op")
	<-ctx.Done()
	cancel()

	if logs.FilterMessage("operation timed out").Len() != 1 {
		t.Error("expected a timeout warning")
	}

	_, cancel = timeouts.WithTimeout(context.Background(), time.Minute, log, "fast op")
	cancel()
	if logs.Len() != 1 {
		t.Errorf("cancel before deadline should not log, got %d entries", logs.Len())
	}
}
