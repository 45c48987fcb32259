package policy

import "userhub/internal/models"

// Action is an operation on the user directory.
type Action string

const (
	ActionListUsers  Action = "list"
	ActionViewUser   Action = "view"
	ActionUpdateUser Action = "update"
	ActionDeleteUser Action = "delete"
)

var capabilities = map[models.UserRole]map[Action]struct{}{
	models.UserRoleEmployee: {
		ActionListUsers: {},
		ActionViewUser:  {},
	},
	models.UserRoleManager: {
		ActionListUsers: {},
		ActionViewUser:  {},
	},
	models.UserRoleAdmin: {
		ActionListUsers:  {},
		ActionViewUser:   {},
		ActionUpdateUser: {},
		ActionDeleteUser: {},
	},
}

// Can is the single place where roles are mapped to permitted actions.
func Can(role models.UserRole, action Action) bool {
	_, ok := capabilities[role][action]
	return ok
}
