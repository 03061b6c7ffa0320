package service

import (
	"strings"
	"time"

	"github.com/garyjia/agency-ops/internal/domain/apperr"
	"github.com/garyjia/agency-ops/internal/domain/entity"
	"github.com/garyjia/agency-ops/internal/domain/role"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Clock returns the current time; tests replace it
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

func requireActor(actor role.Actor) error {
	if !actor.IsAuthenticated() {
		return apperr.Unauthorized("authentication required")
	}
	return nil
}

func requireRole(actor role.Actor, required role.Role) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !actor.Can(required) {
		return apperr.Forbidden("requires " + required.String() + " role")
	}
	return nil
}

// canViewProject: staff see every project, clients only their own
func canViewProject(actor role.Actor, project *entity.Project) bool {
	if actor.Can(role.Developer) {
		return true
	}
	return project.ClientID == actor.UserID
}

// isProjectClientOrManager reports whether the actor may approve work on the project
func isProjectClientOrManager(actor role.Actor, project *entity.Project) bool {
	return actor.Can(role.ProjectManager) || project.ClientID == actor.UserID
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func strPtr(s string) *string {
	return &s
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// checkVersion fails with Conflict when the caller's expected version is stale.
// A zero expected version skips the check.
func checkVersion(kind, id string, expected, actual int64) error {
	if expected != 0 && expected != actual {
		return apperr.Conflict("%s %s has changed (version %d, expected %d); reload and retry", kind, id, actual, expected)
	}
	return nil
}
