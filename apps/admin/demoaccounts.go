package main

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/studyhall/backend/core/user"
)

const defaultDemoPassword = "Demo@2468"

// createDemoAccounts creates or refreshes the demo_<role> account of every role.
func (cli *commandLine) createDemoAccounts(ctx context.Context, pwd string) ([]user.User, error) {
	users := make([]user.User, 0, len(user.AllRoles))
	for _, role := range user.AllRoles {
		usr, err := cli.addUser(ctx, newAccount{
			name:     "Demo " + strings.ToUpper(role[:1]) + role[1:],
			username: "demo_" + role,
			email:    role + "@demo.studyhall.test",
			role:     role,
			password: pwd,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "creating demo %s", role)
		}
		users = append(users, usr)
	}
	return users, nil
}
