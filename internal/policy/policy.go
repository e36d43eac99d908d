// Package policy holds the role-based authorization table for signals.
//
// Authorize is a pure function: it never touches a store. Callers fetch the
// resource first and pass its owner and status in.
package policy

import "github.com/isdelr/signaldesk-be/internal/models"

// Operation names an action a subject wants to perform.
type Operation string

const (
	ListApproved     Operation = "signals.list_approved"
	ListOwn          Operation = "signals.list_own"
	ListAll          Operation = "signals.list_all"
	ViewSignal       Operation = "signals.view"
	CreateSignal     Operation = "signals.create"
	TransitionStatus Operation = "signals.transition"
	EditSignal       Operation = "signals.edit"
	DeleteSignal     Operation = "signals.delete"
	CountPending     Operation = "signals.count_pending"
	UploadChart      Operation = "signals.upload_chart"
	ViewAuditLog     Operation = "events.list"
)

// Decision is the outcome of an authorization check.
type Decision bool

const (
	Deny  Decision = false
	Allow Decision = true
)

// Resource describes the signal an operation targets. The zero value is
// used for collection-level operations.
type Resource struct {
	OwnerID string
	Status  models.SignalStatus
}

// Authorize decides whether subject may perform op on res.
func Authorize(subject models.Identity, op Operation, res Resource) Decision {
	switch subject.Role {
	case models.RoleAdmin:
		return authorizeAdmin(op)
	case models.RoleCallmaker:
		return authorizeCallmaker(subject, op, res)
	case models.RoleUser:
		return authorizeUser(op, res)
	}
	return Deny
}

func authorizeAdmin(op Operation) Decision {
	switch op {
	case ListApproved, ListOwn, ListAll, ViewSignal, CreateSignal, TransitionStatus,
		EditSignal, DeleteSignal, CountPending, UploadChart, ViewAuditLog:
		return Allow
	}
	return Deny
}

func authorizeCallmaker(subject models.Identity, op Operation, res Resource) Decision {
	switch op {
	case ListApproved, ListOwn, CreateSignal, UploadChart:
		return Allow
	case ViewSignal:
		return Decision(owns(subject, res) || res.Status == models.StatusApproved)
	case EditSignal, DeleteSignal:
		return Decision(owns(subject, res))
	}
	return Deny
}

func authorizeUser(op Operation, res Resource) Decision {
	switch op {
	case ListApproved, ListOwn:
		return Allow
	case ViewSignal:
		return Decision(res.Status == models.StatusApproved)
	}
	return Deny
}

func owns(subject models.Identity, res Resource) bool {
	return subject.ID != "" && res.OwnerID == subject.ID
}

// InitialStatus is the status a newly created signal starts in. Admin
// submissions skip review.
func InitialStatus(role models.Role) models.SignalStatus {
	if role == models.RoleAdmin {
		return models.StatusApproved
	}
	return models.StatusPending
}

// VisibleFilter returns the listing filter that role-based visibility
// imposes on the general signal listing.
func VisibleFilter(subject models.Identity, requested models.SignalStatus) models.SignalFilter {
	switch subject.Role {
	case models.RoleAdmin:
		return models.SignalFilter{Status: requested}
	case models.RoleCallmaker:
		return models.SignalFilter{OwnerID: subject.ID}
	default:
		return models.SignalFilter{Status: models.StatusApproved}
	}
}
