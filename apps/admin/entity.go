package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/uclouvain/osis-partnership-sub000/apps"
	"github.com/uclouvain/osis-partnership-sub000/core/entity"
)

func (cli *commandLine) addEntityCmd() *cobra.Command {
	var ne entity.NewEntity
	var parent string

	cmd := &cobra.Command{
		Use:   "addentity",
		Short: "Create a UCL entity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if ne.Acronym == "" {
				return apps.NewArgumentError("acronym", "this argument is required")
			}
			return cli.addEntity(ne, parent)
		},
	}
	cmd.Flags().StringVar(&ne.Acronym, "acronym", "", "The entity acronym")
	cmd.Flags().StringVar(&ne.Title, "title", "", "The entity title")
	cmd.Flags().StringVar(&ne.Type, "type", "", "SECTOR, FACULTY, SCHOOL, INSTITUTE...")
	cmd.Flags().StringVar(&parent, "parent", "", "The acronym of the parent entity")
	return cmd
}

func (cli *commandLine) addEntity(ne entity.NewEntity, parent string) error {
	ctx := context.Background()
	if parent != "" {
		p, err := cli.entitySvc.GetByAcronym(ctx, parent)
		if err != nil {
			return err
		}
		ne.ParentID = &p.ID
	}
	if err := ne.Validate(cli.validate); err != nil {
		return err
	}
	ent, err := cli.entitySvc.Create(ctx, ne)
	if err != nil {
		return err
	}
	cli.printf("entity %s created (id %d)\n", ent.Acronym, ent.ID)
	return nil
}
