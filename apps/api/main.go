package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/studyhall/backend/apps/api/echo"
	"github.com/studyhall/backend/core"
	"github.com/studyhall/backend/core/audit"
	"github.com/studyhall/backend/core/booking"
	"github.com/studyhall/backend/core/dashboard"
	"github.com/studyhall/backend/core/notification"
	"github.com/studyhall/backend/core/payment"
	"github.com/studyhall/backend/core/studyhall"
	"github.com/studyhall/backend/core/subscription"
	"github.com/studyhall/backend/core/user"
	ekqrsvc "github.com/studyhall/backend/services/ekqr"
	emailsvc "github.com/studyhall/backend/services/email"
	eventsvc "github.com/studyhall/backend/services/events"
	logsvc "github.com/studyhall/backend/services/logger"
	pushsvc "github.com/studyhall/backend/services/push"
	"github.com/studyhall/backend/services/realtime"
	storagesvc "github.com/studyhall/backend/services/storage"
	"github.com/studyhall/backend/storage/database"
	inmemdb "github.com/studyhall/backend/storage/database/inmem"
	sqlxrepos "github.com/studyhall/backend/storage/database/sqlx"
)

const housekeepingInterval = time.Hour

type repositories struct {
	users         user.Repository
	halls         studyhall.Repository
	bookings      booking.Repository
	transactions  payment.Repository
	subscriptions subscription.Repository
	tokens        notification.Repository
	audit         audit.Repository
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	std := logsvc.NewStdLogger(conf)
	logger := logsvc.NewRollbarLogger(std, conf)
	defer logger.Close()

	// set up DB
	repos, closeDB, err := setUpRepositories(conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer closeDB()

	// set up services
	mailSvc := emailsvc.NewService(conf, logger)
	events := eventsvc.NewPublisher(conf)
	defer func() {
		if err := events.Close(); err != nil {
			logger.Error(fmt.Sprintf("closing event publisher: %v", err), err)
		}
	}()
	pushSender, err := pushsvc.NewSender(context.Background(), conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up push notifications: %v", err), err)
	}
	storage, err := storagesvc.NewLocalStorage(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up file storage: %v", err), err)
	}
	hub := realtime.NewHub(logger)
	defer hub.Close()

	usrSvc := user.NewService(repos.users, mailSvc, conf)
	subSvc := subscription.NewService(repos.subscriptions, usrSvc)
	hallSvc := studyhall.NewService(repos.halls, subSvc, usrSvc, storage)
	bookingSvc := booking.NewService(repos.bookings, hallSvc, usrSvc, events, logger)
	hallSvc.SetOccupancyProvider(bookingSvc)
	paySvc := payment.NewService(repos.transactions, ekqrsvc.NewClient(conf), bookingSvc, usrSvc, events, logger, conf)
	defer paySvc.Close()
	notifSvc := notification.NewService(repos.tokens, pushSender, hub, logger)
	paySvc.AddListener(notification.NewPaymentNotifier(notifSvc, usrSvc, hallSvc, mailSvc, logger))

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	core.ParseEmailTemplates(conf, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Housekeeping

	ctx, stopHousekeeping := context.WithCancel(context.Background())
	defer stopHousekeeping()
	go housekeep(ctx, logger, bookingSvc, subSvc, paySvc)

	// =========================================================================
	// Start API Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoapi.NewServer(conf.Server.Address, shutdown, &echoapi.Deps{
		Conf:            conf,
		Logger:          logger,
		UserSvc:         usrSvc,
		HallSvc:         hallSvc,
		BookingSvc:      bookingSvc,
		PaymentSvc:      paySvc,
		SubscriptionSvc: subSvc,
		AuditSvc:        audit.NewService(repos.audit, events, logger),
		NotificationSvc: notifSvc,
		DashboardSvc:    dashboard.NewService(bookingSvc, hallSvc, paySvc, usrSvc),
		Hub:             hub,
		UploadsDir:      conf.Storage.Dir,
	})

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shut down and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// setUpRepositories opens (creating and migrating it if needed) the postgres database.
// The "inmem" engine keeps everything in memory, for demos.
func setUpRepositories(conf *core.Config, logger core.Logger) (repositories, func(), error) {
	if conf.Database.Engine == "inmem" {
		logger.Warn("using the in-memory database: data is lost on shutdown")
		db := inmemdb.Open()
		return repositories{
			users:         inmemdb.NewUserRepository(db),
			halls:         inmemdb.NewHallRepository(db),
			bookings:      inmemdb.NewBookingRepository(db),
			transactions:  inmemdb.NewTransactionRepository(db),
			subscriptions: inmemdb.NewSubscriptionRepository(db),
			tokens:        inmemdb.NewTokenRepository(db),
			audit:         inmemdb.NewAuditRepository(db),
		}, func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return repositories{}, nil, err
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		return repositories{}, nil, err
	}
	if err = database.Migrate(db.DB, "up"); err != nil {
		_ = db.Close()
		return repositories{}, nil, err
	}

	closeDB := func() {
		if err := db.Close(); err != nil {
			logger.Error(fmt.Sprintf("closing database: %v", err), err)
		}
	}
	return sqlRepositories(db), closeDB, nil
}

func sqlRepositories(db *sqlx.DB) repositories {
	return repositories{
		users:         sqlxrepos.NewUserRepository(db),
		halls:         sqlxrepos.NewHallRepository(db),
		bookings:      sqlxrepos.NewBookingRepository(db),
		transactions:  sqlxrepos.NewTransactionRepository(db),
		subscriptions: sqlxrepos.NewSubscriptionRepository(db),
		tokens:        sqlxrepos.NewTokenRepository(db),
		audit:         sqlxrepos.NewAuditRepository(db),
	}
}

// housekeep completes the bookings whose last day has passed, expires the ended subscriptions
// and re-checks the pending transactions, once at start then every housekeepingInterval.
func housekeep(ctx context.Context, logger core.Logger, bookings *booking.Service, subs *subscription.Service, payments *payment.Service) {
	ticker := time.NewTicker(housekeepingInterval)
	defer ticker.Stop()

	for {
		if n, err := bookings.CompleteEnded(ctx); err != nil {
			logger.Error(fmt.Sprintf("completing ended bookings: %v", err), err)
		} else if n > 0 {
			logger.Info(fmt.Sprintf("%d booking(s) completed", n))
		}
		if n, err := subs.ExpireEnded(ctx); err != nil {
			logger.Error(fmt.Sprintf("expiring subscriptions: %v", err), err)
		} else if n > 0 {
			logger.Info(fmt.Sprintf("%d subscription(s) expired", n))
		}
		if n, err := payments.Reconcile(ctx); err != nil {
			logger.Error(fmt.Sprintf("reconciling payments: %v", err), err)
		} else if n > 0 {
			logger.Info(fmt.Sprintf("%d transaction(s) settled", n))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
