package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhall/backend/core"
	"github.com/studyhall/backend/core/booking"
	"github.com/studyhall/backend/core/payment"
	"github.com/studyhall/backend/core/studyhall"
	"github.com/studyhall/backend/core/subscription"
	"github.com/studyhall/backend/core/user"
	emailsvc "github.com/studyhall/backend/services/email"
	inmemdb "github.com/studyhall/backend/storage/database/inmem"
	"github.com/studyhall/backend/tests"
)

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

type env struct {
	cli      *commandLine
	usrRepo  user.Repository
	db       *inmemdb.DB
	gateway  *testutil.Gateway
	bookings *booking.Service
	payments *payment.Service
	out      *bytes.Buffer
}

func setup(t *testing.T) env {
	t.Helper()
	conf := core.NewTestConfig()
	conf.Payment.PollInterval = time.Hour // only reconcile settles
	logger := new(testutil.Logger)
	events := new(testutil.Publisher)

	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, emailsvc.NewConsoleService(conf, logger), conf)
	hallSvc := studyhall.NewService(inmemdb.NewHallRepository(db), subscription.NewService(inmemdb.NewSubscriptionRepository(db), usrSvc), usrSvc, nil)
	bookingSvc := booking.NewService(inmemdb.NewBookingRepository(db), hallSvc, usrSvc, events, logger)
	gateway := testutil.NewGateway()
	paySvc := payment.NewService(inmemdb.NewTransactionRepository(db), gateway, bookingSvc, usrSvc, events, logger, conf)
	t.Cleanup(paySvc.Close)

	out := new(bytes.Buffer)
	return env{
		cli: &commandLine{
			db:       new(sql.DB),
			usrRepo:  usrRepo,
			payments: paySvc,
			out:      out,
		},
		usrRepo:  usrRepo,
		db:       db,
		gateway:  gateway,
		bookings: bookingSvc,
		payments: paySvc,
		out:      out,
	}
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest, before func(tt cliTest)) {
	t.Helper()
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if before != nil {
				before(tt)
			}
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, errors.Cause(err))
			case tt.wantErrStr != "":
				require.Error(t, err)
				assert.Equal(t, tt.wantErrStr, err.Error())
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	e := setup(t)

	var gotCommand string
	migrateFunc = func(db *sql.DB, command string, args ...string) error {
		gotCommand = command
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "hall_images", "sql"}},
	}
	runCLITests(t, e.cli, tests, nil)
	assert.Equal(t, "create", gotCommand)

	t.Run("in-memory engine", func(t *testing.T) {
		cli := *e.cli
		cli.db = nil
		assert.Equal(t, errNoDB, cli.run([]string{"admin", "migrate", "up"}))
	})
}

func Test_commandLine_addUser(t *testing.T) {
	e := setup(t)
	existing := testutil.CreateUser(t, e.usrRepo, "Meera", "meera", "meera@test.test", "Old@pass1", user.RoleStudent)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-name", "Ravi", "-username", "ravi"}, wantErr: errHelp},
		{name: "invalid role", args: []string{"adduser", "-name", "Ravi", "-username", "ravi", "-role", "root"}, extra: extra{pwd: "Xq7!mLp2#v"}, wantErr: errInvalidRole},
		{name: "email taken", args: []string{"adduser", "-name", "Ravi", "-username", "ravi", "-email", "MEERA@test.test"}, extra: extra{pwd: "Xq7!mLp2#v"}, wantErr: user.ErrEmailExists},
		{name: "create admin", args: []string{"adduser", "-name", "Ravi", "-username", "Ravi", "-email", "ravi@test.test"}, extra: extra{pwd: "Xq7!mLp2#v"}},
		{name: "promote existing", args: []string{"adduser", "-name", "Meera Shah", "-email", "meera@test.test", "-role", "merchant"}, extra: extra{pwd: "New@pass2"}},
	}
	runCLITests(t, e.cli, tests, func(tt cliTest) {
		readPasswordFunc = func(int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}
	})

	ctx := context.Background()
	ravi, err := e.usrRepo.GetUser(ctx, user.GetFilter{Username: "ravi"})
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, ravi.Role)
	assert.True(t, ravi.IsActive)
	assert.NoError(t, ravi.CheckPassword("Xq7!mLp2#v"))

	meera, err := e.usrRepo.GetUser(ctx, user.GetFilter{ID: existing.ID})
	require.NoError(t, err)
	assert.Equal(t, "Meera Shah", meera.Name)
	assert.Equal(t, user.RoleMerchant, meera.Role)
	assert.NoError(t, meera.CheckPassword("New@pass2"))
}

func Test_commandLine_resetPassword(t *testing.T) {
	e := setup(t)
	usr := testutil.CreateUser(t, e.usrRepo, "User", "awe", "awe@test.test", "mdr", user.RoleStudent)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", "AWE@test.test"}, extra: extra{pwd: "lmao"}},
	}
	runCLITests(t, e.cli, tests, func(tt cliTest) {
		readPasswordFunc = func(int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}
	})

	refreshed, err := e.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
	require.NoError(t, err)
	assert.NoError(t, refreshed.CheckPassword("lmao"))
}

func Test_commandLine_demoAccounts(t *testing.T) {
	e := setup(t)

	require.NoError(t, e.cli.run([]string{"admin", "create-demo-accounts"}))
	// idempotent
	require.NoError(t, e.cli.run([]string{"admin", "demoaccounts", "-password", "Other@135"}))

	users, err := e.usrRepo.QueryUsers(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, users, len(user.AllRoles))
	for _, role := range user.AllRoles {
		usr, err := e.usrRepo.GetUser(context.Background(), user.GetFilter{Username: "demo_" + role})
		require.NoError(t, err, role)
		assert.Equal(t, role, usr.Role)
		assert.NoError(t, usr.CheckPassword("Other@135"), role)
	}
	assert.Contains(t, e.out.String(), "demo_student / Other@135")
}

func Test_commandLine_reconcile(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	merchant := testutil.CreateUser(t, e.usrRepo, "Merchant", "merchant", "merchant@test.test", "", user.RoleMerchant)
	student := testutil.CreateUser(t, e.usrRepo, "Student", "student", "student@test.test", "", user.RoleStudent)
	hall, err := inmemdb.NewHallRepository(e.db).CreateHall(ctx, studyhall.StudyHall{
		MerchantID: merchant.ID, Name: "Hall", Address: "Road", City: "Pune",
		Rows: 1, SeatsPerRow: 2, PricePerDay: 10000, IsActive: true,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	order := func(seat string) (booking.Booking, payment.Transaction) {
		day := booking.Today(time.Now()).Format("2006-01-02")
		b, err := e.bookings.Create(ctx, student, booking.NewBooking{
			StudyHallID: hall.ID, Seat: seat, StartDate: day, EndDate: day, Plan: booking.PlanDaily,
		})
		require.NoError(t, err)
		tx, err := e.payments.CreateOrder(ctx, student, payment.NewOrder{BookingID: b.ID})
		require.NoError(t, err)
		return b, tx
	}
	paid, paidTx := order("R1-1")
	waiting, _ := order("R1-2")
	e.gateway.SetStatus(paidTx.ClientTxnID, payment.GatewaySuccess, 0)

	require.NoError(t, e.cli.run([]string{"admin", "reconcile"}))
	assert.Equal(t, "1 transaction(s) settled\n", e.out.String())

	got, err := e.bookings.GetByID(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, got.Status)
	got, err = e.bookings.GetByID(ctx, waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPending, got.Status)
}
