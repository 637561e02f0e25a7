package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/studyhall/backend/core"
	"github.com/studyhall/backend/core/user"
)

var errInvalidRole = errors.New("invalid role")

type newAccount struct {
	name, username, email, phone, role, password string
}

// addUser updates or creates an active user.User. The password policy is not enforced here.
func (cli *commandLine) addUser(ctx context.Context, acc newAccount) (user.User, error) {
	uname := core.CleanString(acc.username, true /* lower */)
	email := core.CleanString(acc.email, true /* lower */)
	role := core.CleanString(acc.role, true /* lower */)
	if !user.IsValidRole(role) {
		return user.User{}, errInvalidRole
	}

	lookup := uname
	if lookup == "" {
		lookup = email
	}
	now := time.Now().UTC()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: lookup})
	isNew := errors.Cause(err) == user.ErrNotFound
	if err != nil && !isNew {
		return user.User{}, err
	}
	if isNew {
		usr = user.User{Username: uname, Email: email, CreatedAt: now}
	}

	usr.Name = core.SanitizeText(acc.name)
	if phone := core.CleanString(acc.phone); phone != "" {
		usr.Phone = phone
	}
	usr.Role = role
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(acc.password); err != nil {
		return user.User{}, errors.Wrap(err, "setting password")
	}

	if isNew {
		if err = cli.usrRepo.CheckUniqueness(ctx, usr.Username, usr.Email); err != nil {
			return user.User{}, err
		}
		return cli.usrRepo.CreateUser(ctx, usr)
	}
	return cli.usrRepo.UpdateUser(ctx, usr)
}
