package main

import (
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/entity"
	"github.com/uclouvain/osis-partnership-sub000/core/reference"
	"github.com/uclouvain/osis-partnership-sub000/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db        *sql.DB
	usrSvc    user.Service
	entitySvc entity.Service
	refSvc    reference.Service
	cache     core.Cache
	validate  *validator.Validate
	out       io.Writer
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Partnerships administration",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Usage()
			return errHelp
		},
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)

	root.AddCommand(
		cli.migrateCmd(),
		cli.addUserCmd(),
		cli.resetPasswordCmd(),
		cli.grantManagerCmd(),
		cli.addEntityCmd(),
		cli.addReferenceCmd(),
		cli.purgeCacheCmd(),
	)
	return root
}

// run executes the command line; args includes the program name.
func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	cmdArgs := []string{} // never nil: cobra falls back to os.Args
	if len(args) > 1 {
		cmdArgs = args[1:]
	}
	root.SetArgs(cmdArgs)
	return root.Execute()
}

func (cli *commandLine) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(cli.out, format, args...)
}

// promptPassword reads a password without echoing it.
func (cli *commandLine) promptPassword(prompt string) (string, error) {
	cli.printf("%s: ", prompt)
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	cli.printf("\n")
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	return string(pwd), nil
}
