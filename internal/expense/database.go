package expense

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/expense-tracker/internal/model"
)

const expenseBucketName = "expenses"

// ErrNotFound is returned when no expense has the requested ID
var ErrNotFound = errors.New("expense not found")

// DB defines the interface for database operations
type DB interface {
	// SaveExpense saves an expense to the database
	SaveExpense(expense *model.Expense) error

	// SaveExpenses saves a batch of expenses atomically
	SaveExpenses(expenses []*model.Expense) error

	// GetExpense retrieves an expense by ID
	GetExpense(id string) (*model.Expense, error)

	// ListExpenses returns all expenses, most recent first
	ListExpenses() ([]*model.Expense, error)

	// DeleteExpense removes an expense from the database
	DeleteExpense(id string) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(expenseBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func putExpense(bucket *bbolt.Bucket, expense *model.Expense) error {
	data, err := json.Marshal(expense)
	if err != nil {
		return fmt.Errorf("marshaling expense: %w", err)
	}
	return bucket.Put([]byte(expense.ID), data)
}

// SaveExpense saves an expense to the database
func (b *BoltDB) SaveExpense(expense *model.Expense) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return putExpense(tx.Bucket([]byte(expenseBucketName)), expense)
	})
}

// SaveExpenses saves all expenses in one transaction; either all are stored or none
func (b *BoltDB) SaveExpenses(expenses []*model.Expense) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expenseBucketName))
		for _, expense := range expenses {
			if err := putExpense(bucket, expense); err != nil {
				return fmt.Errorf("saving expense %s: %w", expense.ID, err)
			}
		}
		return nil
	})
}

// GetExpense retrieves an expense by ID
func (b *BoltDB) GetExpense(id string) (*model.Expense, error) {
	var expense *model.Expense
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(expenseBucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &expense)
	})
	if err != nil {
		return nil, err
	}
	return expense, nil
}

// ListExpenses returns all expenses sorted by date, most recent first
func (b *BoltDB) ListExpenses() ([]*model.Expense, error) {
	expenses := make([]*model.Expense, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(expenseBucketName)).ForEach(func(k, v []byte) error {
			var expense model.Expense
			if err := json.Unmarshal(v, &expense); err != nil {
				return fmt.Errorf("unmarshaling expense: %w", err)
			}
			expenses = append(expenses, &expense)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(expenses, func(i, j int) bool {
		return expenses[i].OccurredOn.After(expenses[j].OccurredOn)
	})
	return expenses, nil
}

// DeleteExpense removes an expense from the database
func (b *BoltDB) DeleteExpense(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(expenseBucketName)).Delete([]byte(id))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
