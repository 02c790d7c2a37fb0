package model

// Status is the lifecycle state of an issue.
type Status string

const (
	StatusOpen     Status = "Open"
	StatusAssigned Status = "Assigned"
	StatusResolved Status = "Resolved"
	// StatusUpdated only appears in the status log, for a revised solution.
	StatusUpdated Status = "Updated"
)

// Valid reports whether s can be stored as an issue's status.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusAssigned, StatusResolved:
		return true
	default:
		return false
	}
}

// Operation names a lifecycle operation.
type Operation string

const (
	OpSubmit      Operation = "submit"
	OpAssign      Operation = "assign"
	OpPropose     Operation = "propose_solution"
	OpRevise      Operation = "revise_solution"
	OpWithdraw    Operation = "withdraw_solution"
	OpAcknowledge Operation = "acknowledge"
	OpEdit        Operation = "edit"
	OpDelete      Operation = "delete"
)

// Transition is one row of the lifecycle table.
type Transition struct {
	To Status
	// Logged is the status label written to the status log; empty means no entry.
	Logged Status
	// Actor is the only role allowed to perform the operation.
	Actor Role
}

var transitions = map[Status]map[Operation]Transition{
	StatusOpen: {
		OpAssign:      {To: StatusAssigned, Logged: StatusAssigned, Actor: RoleAdmin},
		OpAcknowledge: {To: StatusOpen, Actor: RoleReporter},
		OpEdit:        {To: StatusOpen, Actor: RoleReporter},
	},
	StatusAssigned: {
		OpPropose:     {To: StatusResolved, Logged: StatusResolved, Actor: RoleResolver},
		OpAcknowledge: {To: StatusAssigned, Actor: RoleReporter},
	},
	StatusResolved: {
		OpRevise:      {To: StatusResolved, Logged: StatusUpdated, Actor: RoleResolver},
		OpWithdraw:    {To: StatusAssigned, Logged: StatusAssigned, Actor: RoleResolver},
		OpAcknowledge: {To: StatusResolved, Actor: RoleReporter},
	},
}

// CanTransition looks up op in the lifecycle table for an issue in state from.
// Delete is legal from every state and removes the record, so it is not in the table.
func CanTransition(from Status, op Operation) (Transition, bool) {
	ops, ok := transitions[from]
	if !ok {
		return Transition{}, false
	}
	t, ok := ops[op]
	return t, ok
}
