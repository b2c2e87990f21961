package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/uclouvain/osis-partnership-sub000/apps"
	"github.com/uclouvain/osis-partnership-sub000/core/user"
)

func (cli *commandLine) addUserCmd() *cobra.Command {
	var nu user.NewUser
	var viewer bool

	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user; the password is prompted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if nu.Username == "" && nu.Email == "" {
				return apps.NewArgumentError("username", "a username or an email is required")
			}
			if viewer {
				nu.Roles = []string{user.RoleViewer}
			}
			pwd, err := cli.promptPassword("Enter password")
			if err != nil {
				return err
			}
			nu.Password, nu.PasswordConfirm = pwd, pwd
			return cli.addUser(nu)
		},
	}
	cmd.Flags().StringVar(&nu.Username, "username", "", "The user's username")
	cmd.Flags().StringVar(&nu.Email, "email", "", "The user's email")
	cmd.Flags().StringVar(&nu.FirstName, "first-name", "", "The user's first name")
	cmd.Flags().StringVar(&nu.LastName, "last-name", "", "The user's last name")
	cmd.Flags().BoolVar(&viewer, "viewer", false, "Grant the partnership viewer role")
	return cmd
}

// addUser creates a user.User
func (cli *commandLine) addUser(nu user.NewUser) error {
	if err := nu.Validate(cli.validate); err != nil {
		return err
	}
	usr, err := cli.usrSvc.Create(context.Background(), nu)
	if err != nil {
		return err
	}
	cli.printf("user %q created (id %d)\n", usr.Username, usr.ID)
	return nil
}
