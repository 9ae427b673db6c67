package telemetry_test

import (
	"testing"

	"github.com/kdapp-net/auth-episode/internal/telemetry"
)

func TestLoggerWithAndNewSystem(t *testing.T) {
	base := telemetry.NewLogger("engine")
	scoped := base.With("episode_id", uint32(7)).NewSystem("apply")

	// These must not panic; the underlying zap logger swallows unknown
	// subsystems gracefully.
	scoped.Info("command applied", "command", "RequestChallenge")
	scoped.Debug("rollback pushed")
	scoped.Warn("slow subscriber dropped", "conn", "abc")
	scoped.Error("invalid signature", "error", "verify failed")
}

func TestFromContextFallsBackToNoop(t *testing.T) {
	lg := telemetry.FromContext(t.Context())
	if lg == nil {
		t.Fatal("expected a non-nil fallback logger")
	}
	lg.Info("should not panic")
}
