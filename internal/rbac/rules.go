package rbac

// Permissions enforced by the HTTP API.
const (
	PermExamCreate        = "exam:create"
	PermExamView          = "exam:view"
	PermSubmissionSave    = "submission:save"
	PermSubmissionSubmit  = "submission:submit"
	PermSubmissionViewOwn = "submission:view-own"
	PermSubmissionViewAll = "submission:view-all"
	PermAuditView         = "audit:view"
)

// Known lists every permission a route checks.
var Known = []string{
	PermExamCreate,
	PermExamView,
	PermSubmissionSave,
	PermSubmissionSubmit,
	PermSubmissionViewOwn,
	PermSubmissionViewAll,
	PermAuditView,
}

// RolePermissions is the default policy. Roles match exam.Role values.
// Seeing unpublished exams and answer keys follows the role itself
// (exam.Role.Staff), not a permission.
var RolePermissions = Policy{
	"student": {
		PermExamView,
		PermSubmissionSave,
		PermSubmissionSubmit,
		PermSubmissionViewOwn,
	},
	"teacher": {
		PermExamCreate,
		PermExamView,
		PermSubmissionViewOwn,
		PermSubmissionViewAll,
	},
	"admin": {
		"*",
	},
}
