package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/uclouvain/osis-partnership-sub000/apps"
)

func (cli *commandLine) resetPasswordCmd() *cobra.Command {
	var uname string

	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset a user's password; the password is prompted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if uname == "" {
				return apps.NewArgumentError("username", "this argument is required")
			}
			pwd, err := cli.promptPassword("Enter password")
			if err != nil {
				return err
			}
			if pwd == "" {
				return apps.NewArgumentError("", "the password cannot be empty")
			}
			return cli.resetPassword(uname, pwd)
		},
	}
	cmd.Flags().StringVar(&uname, "username", "", "The user's username or email")
	return cmd
}

func (cli *commandLine) resetPassword(uname, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	if _, err = cli.usrSvc.SetPassword(ctx, usr, pwd); err != nil {
		return err
	}
	cli.printf("password of %q updated\n", usr.Username)
	return nil
}
