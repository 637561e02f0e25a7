package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/studyhall/backend/core"
	"github.com/studyhall/backend/core/booking"
	"github.com/studyhall/backend/core/user"
)

var (
	// errors
	ErrNotFound          = errors.New("transaction not found")
	ErrBookingNotPending = errors.New("only pending bookings can be paid")
	ErrGateway           = errors.New("payment gateway error")
	ErrAmountMismatch    = errors.New("paid amount does not match the transaction")
	ErrDuplicateTxnID    = errors.New("client transaction id already used")
)

type (
	Repository interface {
		CreateTransaction(ctx context.Context, tx Transaction) (Transaction, error)
		GetTransaction(ctx context.Context, id string) (Transaction, error)
		GetTransactionByClientTxnID(ctx context.Context, clientTxnID string) (Transaction, error)
		QueryTransactions(ctx context.Context, filter QueryFilter) ([]Transaction, error)
		// Settle moves the pending transaction clientTxnID to status. settled is false, and the stored
		// transaction returned, when it was not pending anymore.
		Settle(ctx context.Context, clientTxnID, status string, gatewayResponse []byte, at time.Time) (tx Transaction, settled bool, err error)
		// SumCompleted adds up the amounts of the completed transactions matching filter.
		SumCompleted(ctx context.Context, filter QueryFilter) (int64, error)
	}

	BookingService interface {
		Get(ctx context.Context, actor user.User, id string) (booking.Booking, error)
		GetByID(ctx context.Context, id string) (booking.Booking, error)
		Query(ctx context.Context, actor user.User, filter booking.QueryFilter) ([]booking.Booking, error)
		MarkConfirmed(ctx context.Context, id string) (booking.Booking, error)
		MarkCancelled(ctx context.Context, id string) (booking.Booking, error)
	}

	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	// SettlementListener is told about every transaction settled, once.
	SettlementListener interface {
		TransactionSettled(ctx context.Context, tx Transaction, b booking.Booking)
	}

	Service struct {
		repo      Repository
		gateway   Gateway
		bookings  BookingService
		users     UserGetter
		events    core.EventPublisher
		logger    core.Logger
		conf      core.PaymentConfig
		frontURL  string
		listeners []SettlementListener
		poller    Poller

		// background polls
		pollCtx    context.Context
		stopPolls  context.CancelFunc
		pollsGroup sync.WaitGroup
		pollsMu    sync.Mutex
		polling    map[string]struct{} // client txn ids
	}
)

func NewService(
	repo Repository,
	gateway Gateway,
	bookings BookingService,
	users UserGetter,
	events core.EventPublisher,
	logger core.Logger,
	conf *core.Config,
) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		repo:      repo,
		gateway:   gateway,
		bookings:  bookings,
		users:     users,
		events:    events,
		logger:    logger,
		conf:      conf.Payment,
		frontURL:  conf.FrontendBaseURL,
		poller:    NewPoller(conf.Payment.PollInterval, conf.Payment.MaxPolls),
		pollCtx:   ctx,
		stopPolls: cancel,
		polling:   make(map[string]struct{}),
	}
}

func (svc *Service) AddListener(l SettlementListener) {
	svc.listeners = append(svc.listeners, l)
}

// CreateOrder opens a gateway order for a pending booking of actor.
// A pending transaction of the booking is reused instead of opening a second order.
func (svc *Service) CreateOrder(ctx context.Context, actor user.User, no NewOrder) (Transaction, error) {
	if err := core.Validate.Struct(no); err != nil {
		return Transaction{}, err
	}
	b, err := svc.bookings.Get(ctx, actor, no.BookingID)
	if err != nil {
		return Transaction{}, err
	}
	if b.Status != booking.StatusPending {
		return Transaction{}, ErrBookingNotPending
	}

	pending, err := svc.repo.QueryTransactions(ctx, QueryFilter{BookingID: b.ID, Statuses: []string{StatusPending}})
	if err != nil {
		return Transaction{}, errors.Wrap(err, "querying pending transactions")
	}
	if len(pending) > 0 {
		return pending[0], nil
	}

	payer, err := svc.users.GetByID(ctx, b.UserID)
	if err != nil {
		return Transaction{}, errors.Wrap(err, "getting payer")
	}

	clientTxnID := no.ClientTxnID
	if clientTxnID == "" {
		clientTxnID = uuid.New().String()
	}
	order, err := svc.gateway.CreateOrder(ctx, OrderRequest{
		ClientTxnID:    clientTxnID,
		Amount:         b.Amount,
		ProductInfo:    fmt.Sprintf("Seat %s (%s to %s)", b.Seat, b.StartDate.Format("02 Jan"), b.EndDate.Format("02 Jan 2006")),
		CustomerName:   payer.Name,
		CustomerEmail:  payer.Email,
		CustomerMobile: payer.Phone,
		RedirectURL:    svc.conf.RedirectURL,
		UDF:            [3]string{b.ID, b.StudyHallID, payer.ID},
	})
	if err != nil {
		return Transaction{}, errors.Wrap(ErrGateway, err.Error())
	}

	now := time.Now().UTC()
	tx, err := svc.repo.CreateTransaction(ctx, Transaction{
		BookingID:       b.ID,
		UserID:          payer.ID,
		ClientTxnID:     clientTxnID,
		GatewayOrderID:  order.OrderID,
		Amount:          b.Amount,
		Status:          StatusPending,
		PaymentURL:      order.PaymentURL,
		UPILinks:        order.UPILinks,
		GatewayResponse: order.Raw,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return Transaction{}, err
	}
	svc.publish(ctx, "payment.created", tx, actor.ID)
	return tx, nil
}

// Get returns a transaction if actor may see its booking.
func (svc *Service) Get(ctx context.Context, actor user.User, clientTxnID string) (Transaction, error) {
	tx, err := svc.repo.GetTransactionByClientTxnID(ctx, clientTxnID)
	if err != nil {
		return Transaction{}, err
	}
	if tx.UserID != actor.ID {
		if _, err := svc.bookings.Get(ctx, actor, tx.BookingID); err != nil {
			if errors.Cause(err) == booking.ErrNotFound {
				return Transaction{}, ErrNotFound
			}
			return Transaction{}, err
		}
	}
	return tx, nil
}

// Query lists transactions. Students only see theirs; merchants and incharges those of their halls' bookings.
func (svc *Service) Query(ctx context.Context, actor user.User, filter QueryFilter) ([]Transaction, error) {
	switch {
	case actor.IsAdmin():
	case actor.IsStudent():
		filter.UserID = actor.ID
	default:
		visible, err := svc.bookings.Query(ctx, actor, booking.QueryFilter{})
		if err != nil {
			return nil, errors.Wrap(err, "listing visible bookings")
		}
		if len(visible) == 0 {
			return []Transaction{}, nil
		}
		filter.BookingIDs = make([]string, 0, len(visible))
		for _, b := range visible {
			filter.BookingIDs = append(filter.BookingIDs, b.ID)
		}
	}
	return svc.repo.QueryTransactions(ctx, filter)
}

// Revenue adds up the completed payments matching filter.
func (svc *Service) Revenue(ctx context.Context, filter QueryFilter) (int64, error) {
	return svc.repo.SumCompleted(ctx, filter)
}

// CheckStatus asks the gateway about a pending transaction and settles it when the gateway reports a final status.
func (svc *Service) CheckStatus(ctx context.Context, clientTxnID string) (Transaction, error) {
	tx, err := svc.repo.GetTransactionByClientTxnID(ctx, clientTxnID)
	if err != nil {
		return Transaction{}, err
	}
	if tx.IsSettled() {
		return tx, nil
	}

	gs, err := svc.gateway.CheckStatus(ctx, tx.ClientTxnID, tx.CreatedAt)
	if err != nil {
		return tx, errors.Wrap(ErrGateway, err.Error())
	}
	status, ok := SettlementFor(gs.Status)
	if !ok {
		return tx, nil
	}
	if status == StatusCompleted && gs.Amount > 0 && gs.Amount != tx.Amount {
		svc.logger.Warn(fmt.Sprintf("payment: %s paid %d instead of %d", tx.ClientTxnID, gs.Amount, tx.Amount))
		status = StatusFailed
	}
	return svc.settle(ctx, tx, status, gs.Raw)
}

// HandleWebhook settles the transaction the gateway redirected the payer for and returns the frontend
// page the payer must land on.
func (svc *Service) HandleWebhook(ctx context.Context, params WebhookParams) (string, error) {
	params.ClientTxnID = strings.TrimSpace(params.ClientTxnID)
	if params.ClientTxnID == "" {
		return svc.resultURL(Transaction{Status: StatusFailed}), ErrNotFound
	}
	tx, err := svc.repo.GetTransactionByClientTxnID(ctx, params.ClientTxnID)
	if err != nil {
		return svc.resultURL(Transaction{ClientTxnID: params.ClientTxnID, Status: StatusFailed}), err
	}
	if tx.IsSettled() {
		return svc.resultURL(tx), nil
	}

	if svc.conf.VerifyWebhook {
		tx, err = svc.CheckStatus(ctx, tx.ClientTxnID)
		return svc.resultURL(tx), err
	}

	status, ok := SettlementFor(params.Status)
	if !ok {
		return svc.resultURL(tx), nil
	}
	var mismatch error
	if status == StatusCompleted && params.Amount != "" {
		if paid, err := ParseRupees(params.Amount); err != nil || paid != tx.Amount {
			svc.logger.Warn(fmt.Sprintf("payment: %s reported paid %q instead of %s", tx.ClientTxnID, params.Amount, FormatRupees(tx.Amount)))
			status, mismatch = StatusFailed, ErrAmountMismatch
		}
	}
	raw, err := json.Marshal(webhookResponse{Source: "webhook", Status: params.Status, Amount: params.Amount, OrderID: params.OrderID})
	if err != nil {
		return svc.resultURL(tx), errors.Wrap(err, "encoding webhook params")
	}
	if tx, err = svc.settle(ctx, tx, status, raw); err != nil {
		return svc.resultURL(tx), err
	}
	return svc.resultURL(tx), mismatch
}

// webhookResponse is what gets stored as the gateway response of a transaction settled by webhook.
type webhookResponse struct {
	Source  string `json:"source"`
	Status  string `json:"status"`
	Amount  string `json:"amount"`
	OrderID string `json:"order_id"`
}

func (svc *Service) resultURL(tx Transaction) string {
	p := svc.conf.FailurePath
	if tx.Status == StatusCompleted {
		p = svc.conf.SuccessPath
	}
	q := url.Values{}
	if tx.ClientTxnID != "" {
		q.Set("client_txn_id", tx.ClientTxnID)
	}
	q.Set("status", tx.Status)
	return svc.frontURL + p + "?" + q.Encode()
}

// settle applies a final status once: the booking follows the transaction and listeners are told.
func (svc *Service) settle(ctx context.Context, tx Transaction, status string, raw []byte) (Transaction, error) {
	tx, settled, err := svc.repo.Settle(ctx, tx.ClientTxnID, status, raw, time.Now().UTC())
	if err != nil || !settled {
		return tx, err
	}

	var b booking.Booking
	if tx.Status == StatusCompleted {
		b, err = svc.bookings.MarkConfirmed(ctx, tx.BookingID)
	} else {
		b, err = svc.bookings.MarkCancelled(ctx, tx.BookingID)
	}
	if err != nil {
		if errors.Cause(err) == booking.ErrInvalidTransition {
			svc.logger.Warn(fmt.Sprintf("payment: booking %s left as is after %s transaction %s", tx.BookingID, tx.Status, tx.ClientTxnID))
		} else {
			svc.logger.Error(fmt.Sprintf("payment: updating booking %s after %s transaction %s: %v", tx.BookingID, tx.Status, tx.ClientTxnID, err), err)
		}
		if b, err = svc.bookings.GetByID(ctx, tx.BookingID); err != nil {
			return tx, nil
		}
	}

	svc.publish(ctx, "payment."+tx.Status, tx, "")
	for _, l := range svc.listeners {
		l.TransactionSettled(ctx, tx, b)
	}
	return tx, nil
}

// StartPolling checks the transaction in the background until it settles or the poller times out.
// A transaction already being polled is ignored. Polls stop with Close.
func (svc *Service) StartPolling(tx Transaction) {
	svc.pollsMu.Lock()
	if _, ok := svc.polling[tx.ClientTxnID]; ok || svc.pollCtx.Err() != nil {
		svc.pollsMu.Unlock()
		return
	}
	svc.polling[tx.ClientTxnID] = struct{}{}
	svc.pollsGroup.Add(1)
	svc.pollsMu.Unlock()

	go func() {
		defer func() {
			svc.pollsMu.Lock()
			delete(svc.polling, tx.ClientTxnID)
			svc.pollsMu.Unlock()
			svc.pollsGroup.Done()
		}()
		svc.poller.Run(svc.pollCtx, func(ctx context.Context) (string, error) {
			tx, err := svc.CheckStatus(ctx, tx.ClientTxnID)
			return tx.Status, err
		}, func(res PollResult) {
			if res.Status == PollTimeout {
				svc.logger.Warn(fmt.Sprintf("payment: no final status for %s after %d polls", tx.ClientTxnID, res.Polls))
				svc.publish(svc.pollCtx, "payment.timeout", tx, "")
			}
		})
	}()
}

// Reconcile checks every pending transaction against the gateway once and returns how many settled.
func (svc *Service) Reconcile(ctx context.Context) (int, error) {
	pending, err := svc.repo.QueryTransactions(ctx, QueryFilter{Statuses: []string{StatusPending}})
	if err != nil {
		return 0, err
	}
	var settled int
	for _, tx := range pending {
		updated, err := svc.CheckStatus(ctx, tx.ClientTxnID)
		if err != nil {
			svc.logger.Warn(fmt.Sprintf("payment: reconciling %s: %v", tx.ClientTxnID, err))
			continue
		}
		if updated.IsSettled() {
			settled++
		}
	}
	return settled, nil
}

// Close stops the background polls and waits for them to return.
func (svc *Service) Close() {
	svc.pollsMu.Lock()
	svc.stopPolls()
	svc.pollsMu.Unlock()
	svc.pollsGroup.Wait()
}

func (svc *Service) publish(ctx context.Context, key string, tx Transaction, actorID string) {
	if err := svc.events.Publish(ctx, core.NewEvent(key, tx.ID, actorID, tx)); err != nil {
		svc.logger.Error("payment: publishing "+key, err)
	}
}

// ParseRupees parses a gateway amount such as "120" or "120.50" into paise.
func ParseRupees(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if strings.ContainsAny(s, "+-") {
		return 0, errors.Errorf("invalid amount %q", s)
	}
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if len(frac) > 2 {
		return 0, errors.Errorf("invalid amount %q", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	rupees, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || rupees < 0 {
		return 0, errors.Errorf("invalid amount %q", s)
	}
	paise, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || paise < 0 {
		return 0, errors.Errorf("invalid amount %q", s)
	}
	return rupees*100 + paise, nil
}

// FormatRupees formats paise the way the gateway expects amounts, e.g. "120.50".
func FormatRupees(paise int64) string {
	return fmt.Sprintf("%d.%02d", paise/100, paise%100)
}
