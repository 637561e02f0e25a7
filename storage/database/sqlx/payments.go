package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/studyhall/backend/core/payment"
)

const transactionColumns = `id, booking_id, user_id, client_txn_id, gateway_order_id, amount, status, payment_url,
	upi_links, gateway_response, created_at, updated_at`

type transactionRow struct {
	ID              string         `db:"id"`
	BookingID       string         `db:"booking_id"`
	UserID          string         `db:"user_id"`
	ClientTxnID     string         `db:"client_txn_id"`
	GatewayOrderID  string         `db:"gateway_order_id"`
	Amount          int64          `db:"amount"`
	Status          string         `db:"status"`
	PaymentURL      string         `db:"payment_url"`
	UPILinks        types.JSONText `db:"upi_links"`
	GatewayResponse types.JSONText `db:"gateway_response"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func jsonText(raw []byte) types.JSONText {
	if len(raw) == 0 || !json.Valid(raw) {
		return types.JSONText("{}")
	}
	return types.JSONText(raw)
}

func toTransactionRow(tx payment.Transaction) (transactionRow, error) {
	links := tx.UPILinks
	if links == nil {
		links = map[string]string{}
	}
	rawLinks, err := json.Marshal(links)
	if err != nil {
		return transactionRow{}, errors.Wrap(err, "encoding upi links")
	}
	return transactionRow{
		ID:              tx.ID,
		BookingID:       tx.BookingID,
		UserID:          tx.UserID,
		ClientTxnID:     tx.ClientTxnID,
		GatewayOrderID:  tx.GatewayOrderID,
		Amount:          tx.Amount,
		Status:          tx.Status,
		PaymentURL:      tx.PaymentURL,
		UPILinks:        types.JSONText(rawLinks),
		GatewayResponse: jsonText(tx.GatewayResponse),
		CreatedAt:       tx.CreatedAt,
		UpdatedAt:       tx.UpdatedAt,
	}, nil
}

func (r transactionRow) toTransaction() payment.Transaction {
	links := make(map[string]string)
	_ = r.UPILinks.Unmarshal(&links)
	return payment.Transaction{
		ID:              r.ID,
		BookingID:       r.BookingID,
		UserID:          r.UserID,
		ClientTxnID:     r.ClientTxnID,
		GatewayOrderID:  r.GatewayOrderID,
		Amount:          r.Amount,
		Status:          r.Status,
		PaymentURL:      r.PaymentURL,
		UPILinks:        links,
		GatewayResponse: json.RawMessage(r.GatewayResponse),
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

type transactionRepository struct {
	db *sqlx.DB
}

func NewTransactionRepository(db *sqlx.DB) payment.Repository {
	return &transactionRepository{db: db}
}

func (repo *transactionRepository) CreateTransaction(ctx context.Context, tx payment.Transaction) (payment.Transaction, error) {
	tx.ID = uuid.New().String()
	row, err := toTransactionRow(tx)
	if err != nil {
		return payment.Transaction{}, err
	}
	q := `INSERT INTO payment_transactions (` + transactionColumns + `) VALUES (:id, :booking_id, :user_id,
		:client_txn_id, :gateway_order_id, :amount, :status, :payment_url, :upi_links, :gateway_response,
		:created_at, :updated_at)`
	if _, err = repo.db.NamedExecContext(ctx, q, row); err != nil {
		if isUniqueViolation(err, "payment_transactions_client_txn_id_key") {
			return payment.Transaction{}, payment.ErrDuplicateTxnID
		}
		return payment.Transaction{}, errors.Wrap(err, "inserting transaction")
	}
	return tx, nil
}

func (repo *transactionRepository) get(ctx context.Context, col, val string) (payment.Transaction, error) {
	var row transactionRow
	q := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE ` + col + ` = $1`
	if err := repo.db.GetContext(ctx, &row, q, val); err != nil {
		if err == sql.ErrNoRows {
			return payment.Transaction{}, payment.ErrNotFound
		}
		return payment.Transaction{}, errors.Wrap(err, "getting transaction")
	}
	return row.toTransaction(), nil
}

func (repo *transactionRepository) GetTransaction(ctx context.Context, id string) (payment.Transaction, error) {
	if !isUUID(id) {
		return payment.Transaction{}, payment.ErrNotFound
	}
	return repo.get(ctx, "id", id)
}

func (repo *transactionRepository) GetTransactionByClientTxnID(ctx context.Context, clientTxnID string) (payment.Transaction, error) {
	return repo.get(ctx, "client_txn_id", clientTxnID)
}

func transactionWhere(filter payment.QueryFilter) (where, bool) {
	var w where
	if filter.UserID != "" {
		if !isUUID(filter.UserID) {
			return w, false
		}
		w.add("user_id = ?", filter.UserID)
	}
	if filter.BookingID != "" {
		if !isUUID(filter.BookingID) {
			return w, false
		}
		w.add("booking_id = ?", filter.BookingID)
	}
	if filter.BookingIDs != nil {
		ids := validUUIDs(filter.BookingIDs)
		if len(ids) == 0 {
			return w, false
		}
		w.add("booking_id = ANY(?)", pq.Array(ids))
	}
	if len(filter.Statuses) > 0 {
		w.add("status = ANY(?)", pq.Array(filter.Statuses))
	}
	if !filter.From.IsZero() {
		w.add("created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		w.add("created_at <= ?", filter.To)
	}
	return w, true
}

func (repo *transactionRepository) QueryTransactions(ctx context.Context, filter payment.QueryFilter) ([]payment.Transaction, error) {
	w, ok := transactionWhere(filter)
	if !ok {
		return []payment.Transaction{}, nil
	}
	var rows []transactionRow
	q := `SELECT ` + transactionColumns + ` FROM payment_transactions` + w.String() + ` ORDER BY created_at DESC`
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying transactions")
	}
	txs := make([]payment.Transaction, 0, len(rows))
	for _, r := range rows {
		txs = append(txs, r.toTransaction())
	}
	return txs, nil
}

func (repo *transactionRepository) Settle(ctx context.Context, clientTxnID, status string, gatewayResponse []byte, at time.Time) (payment.Transaction, bool, error) {
	var row transactionRow
	q := `UPDATE payment_transactions SET status = $1, gateway_response = $2, updated_at = $3
		WHERE client_txn_id = $4 AND status = $5 RETURNING ` + transactionColumns
	err := repo.db.GetContext(ctx, &row, q, status, jsonText(gatewayResponse), at, clientTxnID, payment.StatusPending)
	if err == nil {
		return row.toTransaction(), true, nil
	}
	if err != sql.ErrNoRows {
		return payment.Transaction{}, false, errors.Wrap(err, "settling transaction")
	}

	// already settled, or unknown
	tx, err := repo.GetTransactionByClientTxnID(ctx, clientTxnID)
	if err != nil {
		return payment.Transaction{}, false, err
	}
	return tx, false, nil
}

func (repo *transactionRepository) SumCompleted(ctx context.Context, filter payment.QueryFilter) (int64, error) {
	filter.Statuses = []string{payment.StatusCompleted}
	w, ok := transactionWhere(filter)
	if !ok {
		return 0, nil
	}
	var total int64
	if err := repo.db.GetContext(ctx, &total, `SELECT COALESCE(SUM(amount), 0) FROM payment_transactions`+w.String(), w.args...); err != nil {
		return 0, errors.Wrap(err, "summing transactions")
	}
	return total, nil
}
