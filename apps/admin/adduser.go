package main

import (
	"context"
	"fmt"

	"github.com/uniteams/uniteams/core"
	"github.com/uniteams/uniteams/core/auth"
	"github.com/uniteams/uniteams/core/profile"
)

// addUser registers an account with the auth service and provisions its
// profile row with the requested role.
func (cli *commandLine) addUser(email, first, last, role, pwd string) error {
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)

	if !profile.ValidRole(role) {
		return fmt.Errorf("invalid role %q, must be one of %v", role, profile.AllRoles)
	}

	acct := auth.NewAccount{
		Email:     email,
		Password:  pwd,
		FirstName: core.CleanString(first),
		LastName:  core.CleanString(last),
	}
	if err := acct.Validate(); err != nil {
		return err
	}

	ident, _, err := cli.authSvc.SignUp(ctx, acct)
	if err != nil {
		return err
	}

	if _, err := cli.profiles.UpsertProfile(ctx, profile.Profile{
		ID:        ident.ID,
		Email:     ident.Email,
		FirstName: ident.Metadata.FirstName,
		LastName:  ident.Metadata.LastName,
		Role:      role,
	}); err != nil {
		return err
	}
	fmt.Printf("created user %s (%s) with role %s\n", ident.Email, ident.ID, role)
	return nil
}

// setRole updates an existing profile's role.
func (cli *commandLine) setRole(id, role string) error {
	ctx := context.Background()

	if !profile.ValidRole(role) {
		return fmt.Errorf("invalid role %q, must be one of %v", role, profile.AllRoles)
	}

	prof, err := cli.profiles.GetProfile(ctx, id)
	if err != nil {
		return err
	}
	prof.Role = role
	if _, err := cli.profiles.UpsertProfile(ctx, prof); err != nil {
		return err
	}
	fmt.Printf("set role of %s to %s\n", prof.Email, role)
	return nil
}
