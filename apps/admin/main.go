// Command admin is the operations CLI: database setup, user provisioning and
// manual roster synchronization.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/sumitkpand3y/log-book-api/core"
	"github.com/sumitkpand3y/log-book-api/core/course"
	"github.com/sumitkpand3y/log-book-api/core/user"
	svclogger "github.com/sumitkpand3y/log-book-api/services/logger"
	"github.com/sumitkpand3y/log-book-api/services/lms"
	"github.com/sumitkpand3y/log-book-api/storage/database"
)

const usage = `Usage: admin <command> [flags]

Commands:
  createdb     create the application database if missing
  migrate      apply pending schema migrations
  adduser      create a user (prompts for the password)
  syncroster   pull the LMS roster once and upsert it (-course syncs one)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	conf := core.NewConfig()
	logger := svclogger.NewStdLogger(conf.Debug)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var err error
	switch cmd := os.Args[1]; cmd {
	case "createdb":
		err = database.CreateIfNotExist(ctx, conf.Database)
	case "migrate":
		err = migrate(ctx, conf)
	case "adduser":
		err = addUser(ctx, conf, logger, os.Args[2:])
	case "syncroster":
		err = syncRoster(ctx, conf, logger, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal(os.Args[1]+" failed", err)
	}
}

func openDB(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	db, err := database.Open(conf.Database)
	if err != nil {
		return nil, err
	}
	if err = database.StatusCheck(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(ctx context.Context, conf *core.Config) error {
	db, err := openDB(ctx, conf)
	if err != nil {
		return err
	}
	defer db.Close()
	return database.Migrate(db)
}

func addUser(ctx context.Context, conf *core.Config, logger core.Logger, args []string) error {
	fs := flag.NewFlagSet("adduser", flag.ExitOnError)
	email := fs.String("email", "", "email address (required)")
	name := fs.String("name", "", "full name (required)")
	role := fs.String("role", string(user.RoleLearner), "ADMIN, TEACHER or LEARNER")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *name == "" {
		fs.Usage()
		return fmt.Errorf("email and name are required")
	}
	usrRole := user.Role(strings.ToUpper(*role))
	if !usrRole.Valid() {
		return fmt.Errorf("unknown role %q", *role)
	}

	password, err := promptPassword()
	if err != nil {
		return err
	}

	db, err := openDB(ctx, conf)
	if err != nil {
		return err
	}
	defer db.Close()

	usrSvc := user.NewService(database.NewUserRepository(db), logger)
	validate, trans := core.NewValidator()
	user.RegisterValidators(validate, trans)

	nu := user.NewUser{
		Name:            *name,
		Email:           *email,
		Role:            usrRole,
		Password:        password,
		PasswordConfirm: password,
	}
	if err = nu.Validate(validate, usrSvc); err != nil {
		return err
	}
	usr, err := usrSvc.Create(ctx, nu)
	if err != nil {
		return err
	}
	fmt.Printf("created %s user %s (%s)\n", usr.Role, usr.Email, usr.ID)
	return nil
}

func syncRoster(ctx context.Context, conf *core.Config, logger core.Logger, args []string) error {
	fs := flag.NewFlagSet("syncroster", flag.ExitOnError)
	courseID := fs.String("course", "", "sync a single course by its LMS id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if conf.LMS.BaseURL == "" {
		return fmt.Errorf("LMS base URL is not configured")
	}

	db, err := openDB(ctx, conf)
	if err != nil {
		return err
	}
	defer db.Close()

	usrRepo := database.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, logger)
	crsSvc := course.NewService(database.NewCourseRepository(db), usrRepo, logger)

	client := lms.NewClient(conf.LMS)
	var records []course.RosterCourse
	if *courseID != "" {
		rec, err := client.FetchCourseRoster(ctx, *courseID)
		if err != nil {
			return err
		}
		records = []course.RosterCourse{rec}
	} else {
		if records, err = client.FetchRoster(ctx); err != nil {
			return err
		}
	}
	stats, err := crsSvc.SyncRoster(ctx, usrSvc, records)
	if err != nil {
		return err
	}
	fmt.Printf("synced %d courses, %d enrollments\n", stats.Courses, stats.Enrollments)
	return nil
}

func promptPassword() (string, error) {
	fmt.Print("Password: ")
	pwd, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if string(pwd) != string(confirm) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(pwd), nil
}
