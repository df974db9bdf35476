package main

import (
	"context"

	"github.com/uniteams/uniteams/core"
	"github.com/uniteams/uniteams/core/auth"
)

// changePassword signs in with the current password and rotates it.
// The auth service owns credentials, so there is no direct reset path here.
func (cli *commandLine) changePassword(email, current, newPwd string) error {
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)

	if _, err := cli.authSvc.SignInWithPassword(ctx, email, current); err != nil {
		return err
	}
	defer func() { _ = cli.authSvc.SignOut(ctx) }()

	if _, err := cli.authSvc.UpdateUser(ctx, auth.UserUpdate{Password: newPwd}); err != nil {
		return err
	}
	return nil
}
