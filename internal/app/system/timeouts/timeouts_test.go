package timeouts

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestDefaults(t *testing.T) {
	Reset()
	defer Reset()

	if Ping() != DefaultPing || Short() != DefaultShort || Medium() != DefaultMedium || Long() != DefaultLong {
		t.Errorf("Current() = %+v, want defaults", Current())
	}
}

func TestConfigure_IgnoresZero(t *testing.T) {
	Reset()
	defer Reset()

	Configure(Config{Short: 7 * time.Second})

	if Short() != 7*time.Second {
		t.Errorf("Short() = %v, want 7s", Short())
	}
	if Long() != DefaultLong {
		t.Errorf("Long() = %v, want default %v", Long(), DefaultLong)
	}
}

func TestConfigureFromEnv(t *testing.T) {
	Reset()
	defer Reset()

	t.Setenv("FLATHUB_TIMEOUT_PING", "500ms")
	t.Setenv("FLATHUB_TIMEOUT_LONG", "1m")
	t.Setenv("FLATHUB_TIMEOUT_MEDIUM", "not-a-duration")
	t.Setenv("FLATHUB_TIMEOUT_SHORT", "-3s")

	if n := ConfigureFromEnv(); n != 2 {
		t.Errorf("ConfigureFromEnv() = %d, want 2", n)
	}
	if Ping() != 500*time.Millisecond {
		t.Errorf("Ping() = %v, want 500ms", Ping())
	}
	if Long() != time.Minute {
		t.Errorf("Long() = %v, want 1m", Long())
	}
	if Medium() != DefaultMedium || Short() != DefaultShort {
		t.Errorf("invalid values should be ignored, got %+v", Current())
	}
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel := WithTimeout(context.Background(), 10*time.Millisecond, zap.NewNop(), "test")
	<-ctx.Done()
	cancel()

	if ctx.Err() != context.DeadlineExceeded {
		t.Errorf("ctx.Err() = %v, want DeadlineExceeded", ctx.Err())
	}
}
