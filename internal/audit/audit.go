package audit

import (
	"context"

	"github.com/shaamilshan/hamme/internal/domain"
	"github.com/shaamilshan/hamme/pkg/log"
)

// Audit actions.
const (
	ActionRegister      = "user.register"
	ActionLogin         = "user.login"
	ActionLoginFailed   = "user.login_failed"
	ActionLogout        = "user.logout"
	ActionRefreshToken  = "user.refresh_token"
	ActionUpdateProfile = "user.update_profile"
	ActionUploadPicture = "user.upload_picture"
	ActionChoice        = "matching.choice"
	ActionMatchCreated  = "matching.match_created"
	ActionMatchExpired  = "matching.match_expired"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
	FieldUsers  = "users"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, userID string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Msg(msg)
}

// LogWithDetail emits an audit log with extra detail field.
func LogWithDetail(ctx context.Context, action string, userID string, detail string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldDetail, detail).
		Msg(msg)
}

// LogChoice records a submitted choice toward a target.
func LogChoice(ctx context.Context, userID, targetID, choice string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, ActionChoice).
		Str(log.FieldUserID, userID).
		Str(log.FieldTargetID, targetID).
		Str(log.FieldChoice, choice).
		Msg("choice submitted")
}

// LogMatch records a match lifecycle transition.
func LogMatch(ctx context.Context, action string, m *domain.Match, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldMatchID, m.ID).
		Strs(FieldUsers, []string{m.UserA, m.UserB}).
		Str(log.FieldMatchType, string(m.MatchType)).
		Msg(msg)
}
