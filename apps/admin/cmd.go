package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/studyhall/backend/core/user"
	"github.com/studyhall/backend/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	migrateFunc      = database.Migrate  // mockable

	errHelp = errors.New("help provided")
	errNoDB = errors.New("migrate needs a SQL database")
)

type reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

type commandLine struct {
	db       *sql.DB // nil with the in-memory engine
	usrRepo  user.Repository
	payments reconciler
	out      io.Writer
}

func (cli *commandLine) printf(format string, args ...interface{}) {
	out := cli.out
	if out == nil {
		out = os.Stdout
	}
	_, _ = fmt.Fprintf(out, format, args...)
}

func (cli *commandLine) printUsage() {
	cli.printf("Usage:\n")
	cli.printf("  migrate COMMAND [ARGS] - run a goose command (up, down, status, redo, create NAME sql...)\n")
	cli.printf("  adduser -name NAME -username USERNAME -email EMAIL [-phone PHONE] [-role ROLE] - create or update a user\n")
	cli.printf("  resetpassword -username USERNAME|EMAIL - reset user's password\n")
	cli.printf("  demoaccounts [-password PASSWORD] - create one demo account per role (alias: create-demo-accounts)\n")
	cli.printf("  reconcile - check every pending payment against the gateway once\n")
}

// promptPassword reads a password from the terminal without echoing it.
func (cli *commandLine) promptPassword() (string, error) {
	cli.printf("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	cli.printf("\n")
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserPhone := addUserCmd.String("phone", "", "The user's phone number (optional).")
	addUserRole := addUserCmd.String("role", user.RoleAdmin, "One of "+fmt.Sprint(user.AllRoles)+".")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	demoCmd := flag.NewFlagSet("demoaccounts", flag.ContinueOnError)
	demoPwd := demoCmd.String("password", defaultDemoPassword, "The password of every demo account.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		if cli.db == nil {
			return errNoDB
		}
		return migrateFunc(cli.db, args[2], args[3:]...)

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserName == "" || (*addUserUname == "" && *addUserEmail == "") {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		usr, err := cli.addUser(ctx, newAccount{
			name:     *addUserName,
			username: *addUserUname,
			email:    *addUserEmail,
			phone:    *addUserPhone,
			role:     *addUserRole,
			password: pwd,
		})
		if err != nil {
			return err
		}
		cli.printf("user %s (%s) saved\n", usr.Username, usr.Role)
		return nil

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(ctx, *resetPasswordUname, pwd)

	case "demoaccounts", "create-demo-accounts":
		if err := demoCmd.Parse(args[2:]); err != nil {
			return err
		}
		users, err := cli.createDemoAccounts(ctx, *demoPwd)
		if err != nil {
			return err
		}
		for _, usr := range users {
			cli.printf("%-12s %s / %s\n", usr.Role, usr.Username, *demoPwd)
		}
		return nil

	case "reconcile":
		settled, err := cli.payments.Reconcile(ctx)
		if err != nil {
			return err
		}
		cli.printf("%d transaction(s) settled\n", settled)
		return nil

	default:
		cli.printUsage()
		return errHelp
	}
}
