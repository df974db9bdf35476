package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/uniteams/uniteams/core/auth"
	"github.com/uniteams/uniteams/core/profile"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	authSvc  auth.Service
	profiles profile.Repository
	db       *sql.DB // only set when a local database is configured
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  adduser -email EMAIL -first FIRST -last LAST [-role ROLE] - create an account and its profile; the password is prompted next")
	fmt.Println("  setrole -id USER_ID -role ROLE                            - change a user's role")
	fmt.Println("  changepassword -email EMAIL                               - change a user's password; current and new passwords are prompted next")
	fmt.Println("  migrate COMMAND [args]                                    - run database migrations (up, down, status, ...)")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserEmail := addUserCmd.String("email", "", "The user's email address.")
	addUserFirst := addUserCmd.String("first", "", "The user's first name.")
	addUserLast := addUserCmd.String("last", "", "The user's last name.")
	addUserRole := addUserCmd.String("role", profile.RoleMember, "The user's role.")

	setRoleCmd := flag.NewFlagSet("setrole", flag.ExitOnError)
	setRoleID := setRoleCmd.String("id", "", "The user's ID.")
	setRoleRole := setRoleCmd.String("role", "", "The new role.")

	changePwdCmd := flag.NewFlagSet("changepassword", flag.ExitOnError)
	changePwdEmail := changePwdCmd.String("email", "", "The user's email address. The current and new passwords will be prompted next.")

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword("Enter password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserEmail, *addUserFirst, *addUserLast, *addUserRole, pwd)
	case "setrole":
		if err := setRoleCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *setRoleID == "" || *setRoleRole == "" {
			setRoleCmd.Usage()
			return errHelp
		}
		return cli.setRole(*setRoleID, *setRoleRole)
	case "changepassword":
		if err := changePwdCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *changePwdEmail == "" {
			changePwdCmd.Usage()
			return errHelp
		}
		current, err := promptPassword("Enter current password:")
		if err != nil {
			return err
		}
		newPwd, err := promptPassword("Enter new password:")
		if err != nil {
			return err
		}
		if current == "" || newPwd == "" {
			changePwdCmd.Usage()
			return errHelp
		}
		return cli.changePassword(*changePwdEmail, current, newPwd)
	case "migrate":
		return cli.migrate(args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}

func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	pwd, err := readPasswordFunc(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
