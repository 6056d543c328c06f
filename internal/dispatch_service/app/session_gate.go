package app

import (
	"context"
	"log/slog"

	"github.com/Edwingudfriend/mifos-sms-gateway/internal/smsgateway"
)

// SessionGate is checked at the start of every job run. When the session is
// down it asks for a reconnect and tells the caller to skip the run.
type SessionGate struct {
	session smsgateway.Session
	logger  *slog.Logger
}

func NewSessionGate(session smsgateway.Session, logger *slog.Logger) *SessionGate {
	return &SessionGate{session: session, logger: logger.With("component", "session_gate")}
}

// Ready reports whether job may proceed. It never waits for the restart.
func (g *SessionGate) Ready(ctx context.Context, job string) bool {
	if g.session.IsActive() {
		return true
	}
	g.logger.WarnContext(ctx, "Gateway session inactive, restarting and skipping run", "job", job, "session", g.session.Name())
	sessionRestartsCounter.WithLabelValues(job).Inc()
	g.session.Restart()
	return false
}
