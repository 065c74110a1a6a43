package caselog

import "time"

// Priority buckets a case by how close its course's end date is.
type Priority string

const (
	PriorityOverdue Priority = "overdue"
	PriorityHigh    Priority = "high"
	PriorityMedium  Priority = "medium"
	PriorityLow     Priority = "low"
)

// PriorityFromDue derives urgency from the remaining time until due. A missing
// due date defaults to low.
func PriorityFromDue(due, now time.Time) Priority {
	if due.IsZero() {
		return PriorityLow
	}
	remaining := due.Sub(now)
	switch {
	case remaining < 0:
		return PriorityOverdue
	case remaining < 24*time.Hour:
		return PriorityHigh
	case remaining < 7*24*time.Hour:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// ReviewLog is a raw dashboard row: a log joined with its learner and course.
type ReviewLog struct {
	Log
	LearnerName   string    `json:"learner_name"`
	LearnerEmail  string    `json:"learner_email"`
	CourseTitle   string    `json:"course_title"`
	CourseFaculty string    `json:"course_faculty"`
	CourseEndDate time.Time `json:"course_end_date"`
}

// Submission statuses, derived by dominance: any rejection outweighs pending
// work, which outweighs full approval.
const (
	SubmissionRejected = "rejected"
	SubmissionPending  = "pending"
	SubmissionApproved = "approved"
	SubmissionDraft    = "draft"
)

type (
	// CaseDetail is one case inside a submission, with its own status and urgency.
	CaseDetail struct {
		ID              string    `json:"id"`
		CaseNo          string    `json:"case_no"`
		Date            time.Time `json:"date"`
		Age             int       `json:"age"`
		Sex             string    `json:"sex"`
		UHID            string    `json:"uhid"`
		ChiefComplaint  string    `json:"chief_complaint"`
		History         string    `json:"history"`
		ExamFindings    string    `json:"exam_findings"`
		Diagnosis       string    `json:"diagnosis"`
		Management      string    `json:"management"`
		Status          Status    `json:"status"`
		RejectionReason string    `json:"rejection_reason,omitempty"`
		Priority        Priority  `json:"priority"`
	}

	// Submission groups every case one learner filed in one course.
	Submission struct {
		LearnerID    string `json:"learner_id"`
		LearnerName  string `json:"learner_name"`
		LearnerEmail string `json:"learner_email"`
		CourseID     string `json:"course_id"`
		Title        string `json:"title"`
		Department   string `json:"department"`

		SubmittedAt time.Time `json:"submitted_at"`
		DueDate     time.Time `json:"due_date"`

		Status   string   `json:"status"`
		Priority Priority `json:"priority"`

		TotalCases     int `json:"total_cases"`
		ApprovedCases  int `json:"approved_cases"`
		RejectedCases  int `json:"rejected_cases"`
		PendingCases   int `json:"pending_cases"`
		CompletedCases int `json:"completed_cases"`

		Cases []CaseDetail `json:"cases"`
	}
)

// GroupSubmissions folds raw dashboard rows into one submission per
// (learner, course) pair, preserving the rows' encounter order. Because the
// rows arrive already paginated, a page of N rows may group into fewer
// submissions and one submission's cases can span adjacent pages.
func GroupSubmissions(rows []ReviewLog, now time.Time) []Submission {
	subs := make([]Submission, 0, len(rows))
	index := make(map[[2]string]int, len(rows)) // (learnerID, courseID) -> subs index

	for _, row := range rows {
		key := [2]string{row.CreatedByID, row.CourseID}
		i, ok := index[key]
		if !ok {
			i = len(subs)
			index[key] = i
			subs = append(subs, Submission{
				LearnerID:    row.CreatedByID,
				LearnerName:  row.LearnerName,
				LearnerEmail: row.LearnerEmail,
				CourseID:     row.CourseID,
				Title:        row.CourseTitle,
				Department:   row.CourseFaculty,
				SubmittedAt:  row.SubmittedAt,
				DueDate:      row.CourseEndDate,
				Priority:     PriorityFromDue(row.CourseEndDate, now),
			})
		}
		sub := &subs[i]

		sub.TotalCases++
		switch {
		case row.Status == StatusApproved:
			sub.ApprovedCases++
		case row.Status == StatusRejected:
			sub.RejectedCases++
		case row.Status.Pending():
			sub.PendingCases++
		}
		if row.SubmittedAt.After(sub.SubmittedAt) {
			sub.SubmittedAt = row.SubmittedAt
		}
		sub.Cases = append(sub.Cases, CaseDetail{
			ID:              row.ID,
			CaseNo:          row.CaseNo,
			Date:            row.Date,
			Age:             row.Age,
			Sex:             row.Sex,
			UHID:            row.UHID,
			ChiefComplaint:  row.ChiefComplaint,
			History:         row.History,
			ExamFindings:    row.ExamFindings,
			Diagnosis:       row.Diagnosis,
			Management:      row.Management,
			Status:          row.Status,
			RejectionReason: row.RejectionReason,
			Priority:        PriorityFromDue(row.CourseEndDate, now),
		})
	}

	for i := range subs {
		subs[i].CompletedCases = subs[i].ApprovedCases
		subs[i].Status = rollupStatus(&subs[i])
	}
	return subs
}

// rollupStatus derives the group status: rejected dominates pending dominates
// approved; anything else (e.g. only drafts in scope) falls back to draft.
func rollupStatus(sub *Submission) string {
	switch {
	case sub.RejectedCases > 0:
		return SubmissionRejected
	case sub.PendingCases > 0:
		return SubmissionPending
	case sub.TotalCases > 0 && sub.ApprovedCases == sub.TotalCases:
		return SubmissionApproved
	default:
		return SubmissionDraft
	}
}
