package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/uclouvain/osis-partnership-sub000/core/reference"
)

func (cli *commandLine) addReferenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "addreference",
		Short: "Create reference data: countries, education fields and offers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Usage()
			return errHelp
		},
	}
	cmd.AddCommand(cli.addCountryCmd(), cli.addEducationFieldCmd(), cli.addOfferCmd())
	return cmd
}

func (cli *commandLine) addCountryCmd() *cobra.Command {
	var nc reference.NewCountry

	cmd := &cobra.Command{
		Use:   "country",
		Short: "Create a country",
		RunE: func(*cobra.Command, []string) error {
			if err := nc.Validate(cli.validate); err != nil {
				return err
			}
			c, err := cli.refSvc.CreateCountry(context.Background(), nc)
			if err != nil {
				return err
			}
			cli.printf("country %s created (id %d)\n", c.ISOCode, c.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&nc.ISOCode, "iso", "", "The ISO 3166 alpha-2 code")
	cmd.Flags().StringVar(&nc.Name, "name", "", "The french name")
	cmd.Flags().StringVar(&nc.NameEn, "name-en", "", "The english name")
	cmd.Flags().StringVar(&nc.ContinentCode, "continent", "", "The continent code, e.g. EU")
	return cmd
}

func (cli *commandLine) addEducationFieldCmd() *cobra.Command {
	var nf reference.NewEducationField

	cmd := &cobra.Command{
		Use:   "field",
		Short: "Create an education field",
		RunE: func(*cobra.Command, []string) error {
			if err := nf.Validate(cli.validate); err != nil {
				return err
			}
			f, err := cli.refSvc.CreateEducationField(context.Background(), nf)
			if err != nil {
				return err
			}
			cli.printf("education field %s created (id %d)\n", f.Code, f.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&nf.Code, "code", "", "The ISCED code")
	cmd.Flags().StringVar(&nf.Label, "label", "", "The label")
	return cmd
}

func (cli *commandLine) addOfferCmd() *cobra.Command {
	var no reference.NewOffer
	var acronym string

	cmd := &cobra.Command{
		Use:   "offer",
		Short: "Create a training offer",
		RunE: func(*cobra.Command, []string) error {
			ctx := context.Background()
			if acronym != "" {
				ent, err := cli.entitySvc.GetByAcronym(ctx, acronym)
				if err != nil {
					return err
				}
				no.EntityID = &ent.ID
			}
			if err := no.Validate(cli.validate); err != nil {
				return err
			}
			o, err := cli.refSvc.CreateOffer(ctx, no)
			if err != nil {
				return err
			}
			cli.printf("offer %s %d created (id %d)\n", o.Acronym, o.AcademicYear, o.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&no.Acronym, "acronym", "", "The offer acronym")
	cmd.Flags().StringVar(&no.Title, "title", "", "The french title")
	cmd.Flags().StringVar(&no.TitleEn, "title-en", "", "The english title")
	cmd.Flags().IntVar(&no.AcademicYear, "year", 0, "The academic year, e.g. 2024 for 2024-25")
	cmd.Flags().StringVar(&acronym, "entity", "", "The acronym of the managing entity")
	return cmd
}
