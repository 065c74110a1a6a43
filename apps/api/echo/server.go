package echoapi

import (
	"context"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/sumitkpand3y/log-book-api/core"
	"github.com/sumitkpand3y/log-book-api/core/caselog"
	"github.com/sumitkpand3y/log-book-api/core/course"
	"github.com/sumitkpand3y/log-book-api/core/user"
)

type Options struct {
	Conf     *core.Config
	Logger   core.Logger
	Validate *validator.Validate
	Trans    ut.Translator

	UsrSvc *user.Service
	CrsSvc *course.Service
	LogSvc *caselog.Service
}

type server struct {
	echo     *echo.Echo
	conf     *core.Config
	logger   core.Logger
	validate *validator.Validate
	trans    ut.Translator

	usrSvc *user.Service
	crsSvc *course.Service
	logSvc *caselog.Service
}

// Server is the HTTP front of the application.
type Server struct {
	*server
}

func NewServer(opts Options) *Server {
	e := echo.New()
	s := &server{
		echo:     e,
		conf:     opts.Conf,
		logger:   opts.Logger,
		validate: opts.Validate,
		trans:    opts.Trans,
		usrSvc:   opts.UsrSvc,
		crsSvc:   opts.CrsSvc,
		logSvc:   opts.LogSvc,
	}

	e.HideBanner = true
	e.Debug = opts.Conf.Debug
	if e.Debug {
		e.Logger.SetLevel(log.DEBUG)
	}
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{opts.Conf.FrontendBaseURL},
	}))
	e.Use(middleware.Secure())

	s.registerRoutes()
	return &Server{s}
}

func (s *server) registerRoutes() {
	s.echo.GET("/health", s.health)

	api := s.echo.Group("/api/v1")
	api.POST("/auth/login", s.login)

	authed := api.Group("", s.jwtMiddleware(), s.loadUser)
	authed.GET("/auth/me", s.me)

	admin := requireRoles(user.RoleAdmin)
	teacher := requireRoles(user.RoleTeacher)

	authed.POST("/users", s.createUser, admin)
	authed.GET("/users", s.listUsers, admin)
	authed.GET("/users/:id", s.getUser)
	authed.PATCH("/users/:id", s.updateUser)

	authed.POST("/courses", s.createCourse, admin)
	authed.GET("/courses", s.listCourses)
	authed.GET("/courses/:id", s.getCourse)
	authed.PATCH("/courses/:id", s.updateCourse, admin)
	authed.POST("/courses/:id/co-teachers", s.addCoTeacher, admin)
	authed.POST("/courses/:id/enrollments", s.enroll, admin)
	authed.GET("/courses/:id/enrollments", s.listEnrollments)

	authed.POST("/logs", s.createLog)
	authed.GET("/logs", s.listLogs)
	authed.GET("/logs/export", s.exportLogs)
	authed.POST("/logs/bulk-approve", s.bulkApproveLogs, teacher)
	authed.GET("/logs/:id", s.getLog)
	authed.PATCH("/logs/:id", s.updateLog)
	authed.DELETE("/logs/:id", s.deleteLog)
	authed.POST("/logs/:id/submit", s.submitLog)
	authed.POST("/logs/:id/approve", s.approveLog, teacher)
	authed.POST("/logs/:id/reject", s.rejectLog, teacher)

	authed.GET("/dashboard/submissions", s.reviewDashboard, teacher)
}

func (s *server) health(c echo.Context) error {
	return respond(c, 200, echo.Map{
		"app":   s.conf.AppName,
		"env":   s.conf.Env,
		"build": s.conf.Build,
	})
}

// Echo exposes the underlying router, mainly for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) Start() error {
	return s.echo.Start(s.conf.Server.Address())
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
