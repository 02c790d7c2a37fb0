package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from   Status
		op     Operation
		ok     bool
		to     Status
		logged Status
		actor  Role
	}{
		{StatusOpen, OpAssign, true, StatusAssigned, StatusAssigned, RoleAdmin},
		{StatusOpen, OpEdit, true, StatusOpen, "", RoleReporter},
		{StatusOpen, OpAcknowledge, true, StatusOpen, "", RoleReporter},
		{StatusOpen, OpPropose, false, "", "", ""},
		{StatusAssigned, OpAssign, false, "", "", ""},
		{StatusAssigned, OpEdit, false, "", "", ""},
		{StatusAssigned, OpPropose, true, StatusResolved, StatusResolved, RoleResolver},
		{StatusAssigned, OpRevise, false, "", "", ""},
		{StatusResolved, OpRevise, true, StatusResolved, StatusUpdated, RoleResolver},
		{StatusResolved, OpWithdraw, true, StatusAssigned, StatusAssigned, RoleResolver},
		{StatusResolved, OpPropose, false, "", "", ""},
		{StatusResolved, OpEdit, false, "", "", ""},
		{StatusUpdated, OpRevise, false, "", "", ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.op), func(t *testing.T) {
			tr, ok := CanTransition(tt.from, tt.op)
			assert.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.to, tr.To)
			assert.Equal(t, tt.logged, tr.Logged)
			assert.Equal(t, tt.actor, tr.Actor)
		})
	}
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusOpen.Valid())
	assert.True(t, StatusAssigned.Valid())
	assert.True(t, StatusResolved.Valid())
	assert.False(t, StatusUpdated.Valid())
	assert.False(t, Status("Closed").Valid())
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole(" Admin ")
	assert.True(t, ok)
	assert.Equal(t, RoleAdmin, role)

	_, ok = ParseRole("root")
	assert.False(t, ok)
}

func TestRoleDisplayName(t *testing.T) {
	assert.Equal(t, "Admin", RoleAdmin.DisplayName())
	assert.Equal(t, "Resolver", RoleResolver.DisplayName())
	assert.Equal(t, "Reporter", RoleReporter.DisplayName())
	assert.Equal(t, "", Role("").DisplayName())
}

func TestPrincipal(t *testing.T) {
	assert.True(t, Anonymous.IsAnonymous())
	assert.True(t, Principal{ID: 3}.IsAnonymous())
	assert.True(t, Principal{Role: RoleAdmin}.IsAnonymous())

	p := Principal{ID: 3, Role: RoleResolver}
	assert.True(t, p.Is(RoleResolver))
	assert.False(t, p.Is(RoleAdmin))
	assert.False(t, Principal{Role: RoleResolver}.Is(RoleResolver))
}
