package expense

import "github.com/frahmantamala/expense-approval/internal"

// CanView decides whether actor may read e. ownerManagerID is the owner's
// manager at read time. Callers report a refusal as not found.
func CanView(actor internal.ActorContext, e *Expense, ownerManagerID *int64) bool {
	if actor.CompanyID != e.CompanyID {
		return false
	}
	switch {
	case actor.UserID == e.EmployeeID:
		return true
	case actor.IsAdmin():
		return true
	case ownerManagerID != nil && *ownerManagerID == actor.UserID:
		return true
	case e.IsCurrentApprover(actor.UserID):
		return true
	case e.InHistory(actor.UserID):
		return true
	}
	return false
}
