package main

import (
	"context"
	"time"

	"github.com/tathmini/backend/core"
	"github.com/tathmini/backend/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(email, firstName, lastName, role, pwd string) error {
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)
	role = core.CleanString(role, true /* lower */)

	var valid bool
	for _, r := range user.AllRoles {
		if role == r {
			valid = true
			break
		}
	}
	if !valid {
		return errHelp
	}

	now := time.Now().UTC()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	if err != nil {
		if err != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Email:     email,
			CreatedAt: now,
		}
	}
	if firstName != "" {
		usr.FirstName = core.CleanString(firstName)
	}
	if lastName != "" {
		usr.LastName = core.CleanString(lastName)
	}
	usr.Role = role
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if usr.ID == "" {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	}
	return err
}
