package service

import (
	"context"
	"time"

	"github.com/noah-isme/issue-audit-api/internal/models"
	"github.com/noah-isme/issue-audit-api/internal/repository"
)

// IssueStore is the narrow view of the external issues table.
type IssueStore interface {
	GetForUpdate(ctx context.Context, id int64) (*models.Issue, error)
	UpdateField(ctx context.Context, id int64, field string, value *string, at time.Time) error
}

// AuditWindowCounter counts prior non-rejected changes of one field.
type AuditWindowCounter interface {
	CountNonRejected(ctx context.Context, entityID int64, field string, from, to time.Time) (int, error)
}

// ChangeAuditStore appends audit records and answers frequency lookups.
type ChangeAuditStore interface {
	AuditWindowCounter
	Append(ctx context.Context, input models.AuditRecordInput) (*models.AuditRecord, error)
}

// RuleSource loads the active rules for a field.
type RuleSource interface {
	ListActiveForField(ctx context.Context, field string) ([]models.ChangeRule, error)
}

// ChangeStores are the stores bound to one change transaction.
type ChangeStores struct {
	Issues IssueStore
	Audit  ChangeAuditStore
	Rules  RuleSource
}

// TxRunner executes fn in a transaction that commits only when fn returns nil.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, stores ChangeStores) error) error
}

type sqlTxRunner struct {
	uow *repository.UnitOfWork
}

// NewSQLTxRunner adapts the repository unit of work to TxRunner.
func NewSQLTxRunner(uow *repository.UnitOfWork) TxRunner {
	return &sqlTxRunner{uow: uow}
}

func (r *sqlTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, stores ChangeStores) error) error {
	return r.uow.Do(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		return fn(ctx, ChangeStores{Issues: repos.Issues, Audit: repos.Audit, Rules: repos.Rules})
	})
}
