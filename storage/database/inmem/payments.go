package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/studyhall/backend/core/payment"
)

type transactionRepository struct {
	db *DB
}

func NewTransactionRepository(db *DB) payment.Repository {
	return &transactionRepository{db: db}
}

func (repo *transactionRepository) CreateTransaction(_ context.Context, tx payment.Transaction) (payment.Transaction, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, other := range repo.db.transactions {
		if other.ClientTxnID == tx.ClientTxnID {
			return payment.Transaction{}, payment.ErrDuplicateTxnID
		}
	}
	tx.ID = uuid.New().String()
	repo.db.transactions[tx.ID] = &tx
	return tx, nil
}

func (repo *transactionRepository) GetTransaction(_ context.Context, id string) (payment.Transaction, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if tx, ok := repo.db.transactions[id]; ok {
		return *tx, nil
	}
	return payment.Transaction{}, payment.ErrNotFound
}

func (repo *transactionRepository) byClientTxnID(clientTxnID string) *payment.Transaction {
	for _, tx := range repo.db.transactions {
		if tx.ClientTxnID == clientTxnID {
			return tx
		}
	}
	return nil
}

func (repo *transactionRepository) GetTransactionByClientTxnID(_ context.Context, clientTxnID string) (payment.Transaction, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if tx := repo.byClientTxnID(clientTxnID); tx != nil {
		return *tx, nil
	}
	return payment.Transaction{}, payment.ErrNotFound
}

func matchTransaction(tx *payment.Transaction, filter payment.QueryFilter) bool {
	if filter.UserID != "" && tx.UserID != filter.UserID {
		return false
	}
	if filter.BookingID != "" && tx.BookingID != filter.BookingID {
		return false
	}
	if filter.BookingIDs != nil && !contains(filter.BookingIDs, tx.BookingID) {
		return false
	}
	if len(filter.Statuses) > 0 && !contains(filter.Statuses, tx.Status) {
		return false
	}
	return inRange(tx.CreatedAt, filter.From, filter.To)
}

func (repo *transactionRepository) QueryTransactions(_ context.Context, filter payment.QueryFilter) ([]payment.Transaction, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	txs := make([]payment.Transaction, 0)
	for _, tx := range repo.db.transactions {
		if matchTransaction(tx, filter) {
			txs = append(txs, *tx)
		}
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].CreatedAt.After(txs[j].CreatedAt) })
	return txs, nil
}

func (repo *transactionRepository) Settle(_ context.Context, clientTxnID, status string, gatewayResponse []byte, at time.Time) (payment.Transaction, bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	tx := repo.byClientTxnID(clientTxnID)
	if tx == nil {
		return payment.Transaction{}, false, payment.ErrNotFound
	}
	if tx.Status != payment.StatusPending {
		return *tx, false, nil
	}
	tx.Status = status
	if len(gatewayResponse) > 0 {
		tx.GatewayResponse = append([]byte(nil), gatewayResponse...)
	}
	tx.UpdatedAt = at
	return *tx, true, nil
}

func (repo *transactionRepository) SumCompleted(_ context.Context, filter payment.QueryFilter) (int64, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var sum int64
	for _, tx := range repo.db.transactions {
		if tx.Status == payment.StatusCompleted && matchTransaction(tx, filter) {
			sum += tx.Amount
		}
	}
	return sum, nil
}
