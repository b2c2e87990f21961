package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/uclouvain/osis-partnership-sub000/apps"
	"github.com/uclouvain/osis-partnership-sub000/core/user"
)

func (cli *commandLine) grantManagerCmd() *cobra.Command {
	var uname, acronym string
	var scopes []string
	var withChild bool

	cmd := &cobra.Command{
		Use:   "grantmanager",
		Short: "Make a user partnership manager of a UCL entity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch {
			case uname == "":
				return apps.NewArgumentError("username", "this argument is required")
			case acronym == "":
				return apps.NewArgumentError("entity", "this argument is required")
			}
			return cli.grantManager(uname, acronym, scopes, withChild)
		},
	}
	cmd.Flags().StringVar(&uname, "username", "", "The user's username or email")
	cmd.Flags().StringVar(&acronym, "entity", "", "The acronym of the managed entity")
	cmd.Flags().StringSliceVar(&scopes, "scopes", []string{"MOBILITY"}, "The managed partnership types")
	cmd.Flags().BoolVar(&withChild, "with-child", false, "Also manage the entities below")
	return cmd
}

func (cli *commandLine) grantManager(uname, acronym string, scopes []string, withChild bool) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	ent, err := cli.entitySvc.GetByAcronym(ctx, acronym)
	if err != nil {
		return err
	}
	for i, s := range scopes {
		scopes[i] = strings.ToUpper(strings.TrimSpace(s))
	}

	nm := user.NewManager{UserID: usr.ID, EntityID: ent.ID, WithChild: withChild, Scopes: scopes}
	if err = nm.Validate(cli.validate); err != nil {
		return err
	}
	if _, err = cli.usrSvc.GrantManager(ctx, nm); err != nil {
		return err
	}
	cli.printf("%q now manages %s (%s)\n", usr.Username, ent.Acronym, strings.Join(scopes, ", "))
	return nil
}
