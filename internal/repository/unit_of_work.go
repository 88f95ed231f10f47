package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// TxRepositories are repositories bound to one open transaction.
type TxRepositories struct {
	Issues *IssueRepository
	Audit  *AuditRepository
	Rules  *ChangeRuleRepository
}

// UnitOfWork runs a callback inside a single database transaction.
type UnitOfWork struct {
	db *sqlx.DB
}

// NewUnitOfWork constructs the unit of work.
func NewUnitOfWork(db *sqlx.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

// Do commits when fn succeeds and rolls back when it fails or panics.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) (err error) {
	tx, err := u.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	repos := TxRepositories{
		Issues: NewIssueRepository(tx),
		Audit:  NewAuditRepository(tx),
		Rules:  NewChangeRuleRepository(tx),
	}
	if err = fn(ctx, repos); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
