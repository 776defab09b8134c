package authz

// Role tiers attached to a user account.
const (
	RoleAdmin   = "admin"
	RoleRegular = "regular"
)

// ValidRole reports whether the given role is one of the known tiers.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleRegular
}

// Actor is the authenticated identity making a request. A nil *Actor means
// the request is anonymous.
type Actor struct {
	ID       int64
	Name     string
	Username string
	Role     string
}

// IsAdmin reports whether the actor holds the admin role.
func (a *Actor) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

// Action enumerates the operations gated by the policy.
type Action string

const (
	ActionAssetCreate    Action = "asset.create"
	ActionAssetEdit      Action = "asset.edit"
	ActionAssetDelete    Action = "asset.delete"
	ActionCategoryManage Action = "category.manage"
	ActionUserManage     Action = "user.manage"
	ActionProfileEdit    Action = "profile.edit"
)

// Can is the authorization policy: a pure predicate of (actor, action).
// Anonymous actors are denied everything here; register and login are the
// only anonymous operations and they are not routed through the policy.
// Services enforce the record-level invariants (last admin, owned assets),
// so a deny leaves all state untouched.
func Can(actor *Actor, action Action) bool {
	if actor == nil {
		return false
	}
	if actor.Role == RoleAdmin {
		return true
	}
	switch action {
	case ActionAssetCreate, ActionAssetEdit, ActionProfileEdit:
		return true
	default:
		return false
	}
}
