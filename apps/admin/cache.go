package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/uclouvain/osis-partnership-sub000/core"
)

func (cli *commandLine) purgeCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purgecache",
		Short: "Drop the cached portal responses",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := cli.cache.DeletePrefix(context.Background(), core.PortalCachePrefix); err != nil {
				return err
			}
			cli.printf("portal cache purged\n")
			return nil
		},
	}
}
