package session

import (
	"tradeflow/internal/workflow"
)

// RoleModerator lets a user act on trades in moderator mode.
const RoleModerator = "moderator"

// Context is the session user plus the moderator-mode switch.
type Context struct {
	User      workflow.User
	Moderator bool
}

// Resolve returns the acting party of u on t. Moderator mode is honoured only
// for users holding the moderator role; it bypasses stage ownership checks but
// never the request-log rules.
func Resolve(u workflow.User, t *workflow.Trade, moderator bool) workflow.Party {
	p := workflow.Party{User: u, Actor: workflow.ActorNone}
	if t != nil {
		p.Actor = t.ActorOf(u.ID)
	}
	p.Moderator = moderator && u.HasRole(RoleModerator)
	return p
}

func (c Context) Party(t *workflow.Trade) workflow.Party {
	return Resolve(c.User, t, c.Moderator)
}
