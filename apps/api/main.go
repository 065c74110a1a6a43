package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	echoapi "github.com/sumitkpand3y/log-book-api/apps/api/echo"
	"github.com/sumitkpand3y/log-book-api/core"
	"github.com/sumitkpand3y/log-book-api/core/audit"
	"github.com/sumitkpand3y/log-book-api/core/caselog"
	"github.com/sumitkpand3y/log-book-api/core/course"
	"github.com/sumitkpand3y/log-book-api/core/user"
	"github.com/sumitkpand3y/log-book-api/services/email"
	svclogger "github.com/sumitkpand3y/log-book-api/services/logger"
	"github.com/sumitkpand3y/log-book-api/services/lms"
	"github.com/sumitkpand3y/log-book-api/storage/database"
)

func main() {
	conf := core.NewConfig()

	var logger core.Logger
	if conf.RollbarToken != "" {
		rollbarLogger := svclogger.NewRollbarLogger(conf.RollbarToken, conf.Env, conf.Build, conf.Debug)
		defer rollbarLogger.Close()
		logger = rollbarLogger
	} else {
		logger = svclogger.NewStdLogger(conf.Debug)
	}

	if err := run(conf, logger); err != nil {
		logger.Fatal("api failed", err)
	}
}

func run(conf *core.Config, logger core.Logger) error {
	db, err := database.Open(conf.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err = database.StatusCheck(ctx, db); err != nil {
		return err
	}
	if err = database.Migrate(db); err != nil {
		return err
	}

	validate, trans := core.NewValidator()
	user.RegisterValidators(validate, trans)
	caselog.RegisterValidators(validate, trans)

	var mailSvc core.EmailService
	if conf.SendgridApiKey != "" {
		mailSvc = email.NewSendgridService(conf, logger)
	} else {
		mailSvc = email.NewConsoleService(conf, logger)
	}

	usrRepo := database.NewUserRepository(db)
	crsRepo := database.NewCourseRepository(db)
	logRepo := database.NewLogRepository(db)
	recorder := database.NewAuditRepository(db)

	usrSvc := user.NewService(usrRepo, logger)
	crsSvc := course.NewService(crsRepo, usrRepo, logger)
	logSvc := caselog.NewService(logRepo, crsRepo, usrRepo, recorder, mailSvc, logger, validate)

	srv := echoapi.NewServer(echoapi.Options{
		Conf:     conf,
		Logger:   logger,
		Validate: validate,
		Trans:    trans,
		UsrSvc:   usrSvc,
		CrsSvc:   crsSvc,
		LogSvc:   logSvc,
	})

	stopSync := startRosterSync(conf, logger, crsSvc, usrSvc, recorder)
	defer stopSync()

	serverErrs := make(chan error, 1)
	go func() {
		logger.Info("api listening on " + conf.Server.Address())
		serverErrs <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err = <-serverErrs:
		return err
	case sig := <-shutdown:
		logger.Info("shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

// startRosterSync schedules the periodic LMS roster pull; returns a stop
// function. A missing schedule or base URL disables the job.
func startRosterSync(conf *core.Config, logger core.Logger, crsSvc *course.Service, usrSvc *user.Service, recorder audit.Recorder) func() {
	if conf.LMS.SyncSchedule == "" || conf.LMS.BaseURL == "" {
		return func() {}
	}

	source := lms.NewClient(conf.LMS)
	scheduler := cron.New()
	_, err := scheduler.AddFunc(conf.LMS.SyncSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		records, err := source.FetchRoster(ctx)
		if err != nil {
			logger.Error("roster fetch failed", err)
			return
		}
		stats, err := crsSvc.SyncRoster(ctx, usrSvc, records)
		if err != nil {
			logger.Error("roster sync failed", err)
			return
		}
		logger.Info("roster synced", "courses", stats.Courses, "enrollments", stats.Enrollments)

		if err = recorder.Record(ctx, audit.Event{
			Action: audit.ActionRosterSynced,
			Metadata: map[string]interface{}{
				"courses":     stats.Courses,
				"enrollments": stats.Enrollments,
			},
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			logger.Error("recording roster sync event", err)
		}
	})
	if err != nil {
		logger.Error("invalid roster sync schedule", err)
		return func() {}
	}

	scheduler.Start()
	return func() { scheduler.Stop() }
}
