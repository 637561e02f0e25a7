package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/studyhall/backend/core"
	"github.com/studyhall/backend/core/booking"
	"github.com/studyhall/backend/core/payment"
	"github.com/studyhall/backend/core/studyhall"
	"github.com/studyhall/backend/core/subscription"
	"github.com/studyhall/backend/core/user"
	ekqrsvc "github.com/studyhall/backend/services/ekqr"
	emailsvc "github.com/studyhall/backend/services/email"
	eventsvc "github.com/studyhall/backend/services/events"
	logsvc "github.com/studyhall/backend/services/logger"
	"github.com/studyhall/backend/storage/database"
	inmemdb "github.com/studyhall/backend/storage/database/inmem"
	sqlxrepos "github.com/studyhall/backend/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger(conf), conf)

	cli, closeDB, err := newCommandLine(conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}

	err = cli.run(os.Args)
	closeDB()
	logger.Close()
	if err != nil {
		if err != errHelp {
			fmt.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func newCommandLine(conf *core.Config, logger core.Logger) (*commandLine, func(), error) {
	var (
		db       *sql.DB
		usrRepo  user.Repository
		halls    studyhall.Repository
		bookings booking.Repository
		txs      payment.Repository
		subs     subscription.Repository
		closeDB  = func() {}
	)

	if conf.Database.Engine == "inmem" {
		mem := inmemdb.Open()
		usrRepo = inmemdb.NewUserRepository(mem)
		halls = inmemdb.NewHallRepository(mem)
		bookings = inmemdb.NewBookingRepository(mem)
		txs = inmemdb.NewTransactionRepository(mem)
		subs = inmemdb.NewSubscriptionRepository(mem)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, nil, err
		}
		sqlxDB, err := database.Open(ctx, conf)
		if err != nil {
			return nil, nil, err
		}
		db = sqlxDB.DB
		closeDB = func() { _ = sqlxDB.Close() }
		usrRepo = sqlxrepos.NewUserRepository(sqlxDB)
		halls = sqlxrepos.NewHallRepository(sqlxDB)
		bookings = sqlxrepos.NewBookingRepository(sqlxDB)
		txs = sqlxrepos.NewTransactionRepository(sqlxDB)
		subs = sqlxrepos.NewSubscriptionRepository(sqlxDB)
	}

	usrSvc := user.NewService(usrRepo, emailsvc.NewConsoleService(conf, logger), conf)
	hallSvc := studyhall.NewService(halls, subscription.NewService(subs, usrSvc), usrSvc, nil)
	events := eventsvc.NewPublisher(conf)
	closeAll := func() {
		_ = events.Close()
		closeDB()
	}
	bookingSvc := booking.NewService(bookings, hallSvc, usrSvc, events, logger)
	paySvc := payment.NewService(txs, ekqrsvc.NewClient(conf), bookingSvc, usrSvc, events, logger, conf)

	return &commandLine{
		db:       db,
		usrRepo:  usrRepo,
		payments: paySvc,
	}, closeAll, nil
}
