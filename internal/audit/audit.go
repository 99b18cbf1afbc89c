// Package audit implements the "audit-logged once at the point of
// rejection" policy of spec §7: validation errors are user errors, not
// bugs, so they never reach the error reporter, but every rejection
// still leaves a structured trail. Grounded on the teacher's
// internal/repository/audit_repository.go event shape (event type,
// resource, user, success, error message), reworked from a Postgres
// audit_logs table insert to a logrus structured log line — this
// core has no general-purpose admin audit UI to read a table back,
// only an operator tailing logs.
package audit

import (
	"github.com/sirupsen/logrus"
)

// Logger records deploy-path rejections and credential events.
type Logger struct {
	log *logrus.Logger
}

// New wraps log for audit-event emission.
func New(log *logrus.Logger) *Logger {
	return &Logger{log: log}
}

// DeployRejected records a validation failure that denied a deploy
// (spec §7 policy: audit-logged once, never sent to the error
// reporter).
func (a *Logger) DeployRejected(user, group, artifact, version, kind, message string) {
	a.log.WithFields(logrus.Fields{
		"event":    "deploy_rejected",
		"user":     user,
		"group":    group,
		"artifact": artifact,
		"version":  version,
		"kind":     kind,
	}).Warn(message)
}

// PasswordCredentialRejected records spec §4.7's "Require token"
// middleware rejecting HTTP Basic credentials on the deploy path.
func (a *Logger) PasswordCredentialRejected(user, path string) {
	a.log.WithFields(logrus.Fields{
		"event": "password_credential_rejected",
		"user":  user,
		"path":  path,
	}).Warn("password credential rejected on deploy path; a deploy token is required")
}

// GroupClaimed records that user's deploy ran the claim-on-first-use
// step for group (spec §4.4 step a). The finalizer emits it after every
// successful CheckAndAdd, whether or not the group was newly claimed.
func (a *Logger) GroupClaimed(user, group string) {
	a.log.WithFields(logrus.Fields{
		"event": "group_claimed",
		"user":  user,
		"group": group,
	}).Info("group claimed")
}
