package caselog

import "github.com/sumitkpand3y/log-book-api/core/user"

// Authorization policy: every capability check on a case log lives here so the
// state machine evaluates one predicate per action instead of re-deriving role
// rules per handler.

// CanCreateLog: only learners author case logs.
func CanCreateLog(actor user.User) bool {
	return actor.IsLearner()
}

// CanEditLog: only the creator, and never once approved.
func CanEditLog(actor user.User, lg Log) bool {
	return actor.ID == lg.CreatedByID && lg.Status != StatusApproved
}

// CanDeleteLog: only the creator, and only while still a draft.
func CanDeleteLog(actor user.User, lg Log) bool {
	return actor.ID == lg.CreatedByID && lg.Status == StatusDraft
}

// CanReviewLog: a teacher associated with the log's course, owner or co-teacher.
// courseTeacherIDs is the course's full teacher set.
func CanReviewLog(actor user.User, courseTeacherIDs []string) bool {
	if !actor.IsTeacher() {
		return false
	}
	for _, id := range courseTeacherIDs {
		if id == actor.ID {
			return true
		}
	}
	return false
}

// CanViewLog: the creator, any reviewing teacher of the course, or an admin.
func CanViewLog(actor user.User, lg Log, courseTeacherIDs []string) bool {
	return actor.ID == lg.CreatedByID || CanReviewLog(actor, courseTeacherIDs) || actor.IsAdmin()
}
