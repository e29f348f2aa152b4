package main

import (
	"bufio"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
)

var (
	isTerminalFunc = term.IsTerminal // mockable

	errHelp      = errors.New("help provided")
	errAborted   = errors.New("aborted")
	errNoConfirm = errors.New("stdin is not a terminal: pass -yes to confirm")
)

type commandLine struct {
	db        *sql.DB
	usrSvc    user.ServiceInterface
	schoolSvc school.ServiceInterface
	in        io.Reader
	out       io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, up-by-one, up-to, down, down-to, redo, reset, status, version)")
	fmt.Fprintln(cli.out, "  createschool -owner EXTERNAL_ID -name NAME -subdomain SUBDOMAIN [-email EMAIL] [-plan PLAN] [-max-users N] - provision a school")
	fmt.Fprintln(cli.out, "  listschools -owner EXTERNAL_ID [-search TEXT] [-xlsx FILE] - list the schools of a user")
	fmt.Fprintln(cli.out, "  reconcile [-yes] - grant the missing admin memberships of orphaned schools")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	createSchoolCmd := flag.NewFlagSet("createschool", flag.ContinueOnError)
	createSchoolCmd.SetOutput(cli.out)
	csOwner := createSchoolCmd.String("owner", "", "External ID of the identity that will administer the school.")
	csEmail := createSchoolCmd.String("email", "", "Email of the owner, used when their user row does not exist yet.")
	csName := createSchoolCmd.String("name", "", "Display name of the school.")
	csSubdomain := createSchoolCmd.String("subdomain", "", "Subdomain of the school.")
	csDescription := createSchoolCmd.String("description", "", "Optional description.")
	csPlan := createSchoolCmd.String("plan", string(school.DefaultPlan), "Plan: BASIC, PRO or ENTERPRISE.")
	csMaxUsers := createSchoolCmd.Int("max-users", school.DefaultMaxUsers, "Maximum number of users.")

	listSchoolsCmd := flag.NewFlagSet("listschools", flag.ContinueOnError)
	listSchoolsCmd.SetOutput(cli.out)
	lsOwner := listSchoolsCmd.String("owner", "", "External ID of the identity whose schools are listed.")
	lsSearch := listSchoolsCmd.String("search", "", "Only keep schools whose name or subdomain contains this text.")
	lsXLSX := listSchoolsCmd.String("xlsx", "", "Export the list to this spreadsheet file instead of printing it.")

	reconcileCmd := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	reconcileCmd.SetOutput(cli.out)
	rcYes := reconcileCmd.Bool("yes", false, "Do not ask for confirmation.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "createschool":
		if err := createSchoolCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *csOwner == "" || *csName == "" || *csSubdomain == "" {
			createSchoolCmd.Usage()
			return errHelp
		}
		maxUsers := *csMaxUsers
		return cli.createSchool(*csOwner, user.Profile{Email: *csEmail}, school.NewSchool{
			Name:        *csName,
			Subdomain:   *csSubdomain,
			Description: *csDescription,
			PlanType:    school.PlanType(*csPlan),
			MaxUsers:    &maxUsers,
		})
	case "listschools":
		if err := listSchoolsCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *lsOwner == "" {
			listSchoolsCmd.Usage()
			return errHelp
		}
		return cli.listSchools(*lsOwner, *lsSearch, *lsXLSX)
	case "reconcile":
		if err := reconcileCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if !*rcYes {
			if err := cli.confirm("Grant the missing admin memberships now?"); err != nil {
				return err
			}
		}
		return cli.reconcile()
	default:
		cli.printUsage()
		return errHelp
	}
}

// confirm asks a yes/no question on an interactive stdin.
func (cli *commandLine) confirm(question string) error {
	if !isTerminalFunc(int(os.Stdin.Fd())) {
		return errNoConfirm
	}
	fmt.Fprintf(cli.out, "%s [y/N]: ", question)
	answer, err := bufio.NewReader(cli.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return nil
	default:
		return errAborted
	}
}
