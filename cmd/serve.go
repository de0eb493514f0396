package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/controller"
	accountsgrpc "github.com/vibast-solutions/ms-go-accounts/app/grpc"
	"github.com/vibast-solutions/ms-go-accounts/app/middleware"
	"github.com/vibast-solutions/ms-go-accounts/app/service"
	"github.com/vibast-solutions/ms-go-accounts/config"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  `Start both HTTP (Echo) and gRPC servers for the accounts service.`,
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open store")
	}
	defer closeStore()

	authService := service.NewAccountAuthService(store, cfg, service.WithMailer(service.NewLogMailer()))
	internalAuthService := service.NewInternalAuthService(store.APIKeys(), nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := newHTTPServer(cfg, authService, internalAuthService)
	grpcServer := newGRPCServer(authService, internalAuthService)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		httpAddr := net.JoinHostPort(cfg.HTTPHost, cfg.HTTPPort)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		grpcAddr := net.JoinHostPort(cfg.GRPCHost, cfg.GRPCPort)
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return err
		}
		logrus.WithField("addr", grpcAddr).Info("Starting gRPC server")
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		<-gCtx.Done()
		logrus.Info("Shutting down servers")

		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		grpcServer.GracefulStop()
		return e.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil {
		logrus.WithError(err).Fatal("Server stopped with error")
	}
	logrus.Info("Servers stopped")
}

func newHTTPServer(cfg *config.Config, authService service.AccountAuthService, internalAuthService service.InternalAuthService) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = controller.HTTPErrorHandler

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        c.Request().URL.Path,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	accountAuthController := controller.NewAccountAuthController(authService, cfg.Session)
	usersController := controller.NewUsersController(authService, accountAuthController)
	internalAuthController := controller.NewInternalAuthController(authService)
	sessionMiddleware := middleware.NewSessionMiddleware(authService, cfg.Session.CookieName)
	apiKeyMiddleware := middleware.NewAPIKeyMiddleware(internalAuthService)

	auth := e.Group("/auth")
	auth.POST("/create-account", accountAuthController.CreateAccount)
	auth.POST("/login", accountAuthController.Login)
	auth.POST("/logout", accountAuthController.Logout)
	auth.GET("/verify", accountAuthController.VerifyAccount)
	auth.GET("/verify/:token", accountAuthController.VerifyAccount)
	auth.POST("/verify", accountAuthController.VerifyAccount)
	auth.POST("/verify-account-resend", accountAuthController.VerifyAccountResend)
	auth.POST("/forgot-password", accountAuthController.ForgotPassword)
	auth.POST("/reset-password", accountAuthController.ResetPassword)

	authProtected := auth.Group("")
	authProtected.Use(sessionMiddleware.RequireSession)
	authProtected.POST("/change-password", accountAuthController.ChangePassword)

	users := e.Group("/api/v1/users")
	users.Use(sessionMiddleware.RequireSession)
	users.GET("/show", usersController.Show)
	users.DELETE("", usersController.Destroy)

	internal := e.Group("/internal")
	internal.Use(apiKeyMiddleware.RequireAPIKey)
	internal.POST("/sessions/validate", internalAuthController.ValidateSession)

	return e
}

func newGRPCServer(authService service.AccountAuthService, internalAuthService service.InternalAuthService) *grpc.Server {
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(accountsgrpc.APIKeyUnaryInterceptor(internalAuthService)),
		grpc.StreamInterceptor(accountsgrpc.APIKeyStreamInterceptor(internalAuthService)),
	)
	accountsgrpc.RegisterAccountServiceServer(grpcServer, accountsgrpc.NewAccountServer(authService))
	return grpcServer
}
