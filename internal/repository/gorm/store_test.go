package gormrepository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ibrl/internal/errs"
	"ibrl/internal/models"
	"ibrl/internal/repository"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return New(gdb), mock
}

var proposalColumns = []string{"id", "owner", "intent_id", "kind", "origin", "created_by", "summary", "status", "signature", "created_at", "updated_at"}

func TestDecideProposal_IdempotentSecondCall(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "proposals" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "proposals"`)).
		WillReturnRows(sqlmock.NewRows(proposalColumns).
			AddRow("p1", "owner1", nil, "EXIT_TO_USDC", "user", "user", "Exit", models.ProposalStatusDenied, nil, now, now))

	item, applied, err := store.DecideProposal(ctx, "owner1", "p1", models.ProposalStatusDenied, nil, now)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, models.ProposalStatusDenied, item.Status)

	// Second call: the conditional update matches nothing and the current row is returned.
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "proposals" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "proposals"`)).
		WillReturnRows(sqlmock.NewRows(proposalColumns).
			AddRow("p1", "owner1", nil, "EXIT_TO_USDC", "user", "user", "Exit", models.ProposalStatusDenied, nil, now, now))

	item, applied, err = store.DecideProposal(ctx, "owner1", "p1", models.ProposalStatusDenied, nil, now)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, models.ProposalStatusDenied, item.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecideProposal_StampsDecisionTime(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "proposals" SET`)).
		WithArgs(models.ProposalStatusSent, at, "p1", "owner1", models.ProposalStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "proposals"`)).
		WillReturnRows(sqlmock.NewRows(proposalColumns).
			AddRow("p1", "owner1", nil, "EXIT_TO_USDC", "user", "user", "Exit", models.ProposalStatusSent, nil, at, at))

	item, applied, err := store.DecideProposal(context.Background(), "owner1", "p1", models.ProposalStatusSent, nil, at)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, at, item.UpdatedAt.UTC())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecideProposal_OtherOwnerIsNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "proposals" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "proposals"`)).
		WillReturnRows(sqlmock.NewRows(proposalColumns))

	item, applied, err := store.DecideProposal(context.Background(), "intruder", "p1", models.ProposalStatusSent, nil, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Nil(t, item)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertProposalMarkFired_PendingExists(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "automations"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner", "kind", "status"}).
			AddRow("a1", "owner1", "PRICE_TRIGGER_EXIT", models.AutomationStatusActive))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "proposals"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err := store.InsertProposalMarkFired(context.Background(), &models.Proposal{ID: "p2", Owner: "owner1"}, repository.FireParams{
		AutomationID: "a1",
		Owner:        "owner1",
		FiredAt:      time.Now().UTC(),
	})
	assert.True(t, errors.Is(err, errs.ErrStateConflict), "err=%v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertProposalMarkFired_PausedAutomation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "automations"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner", "kind", "status"}).
			AddRow("a1", "owner1", "DCA_SWAP", models.AutomationStatusPaused))
	mock.ExpectRollback()

	err := store.InsertProposalMarkFired(context.Background(), &models.Proposal{ID: "p2", Owner: "owner1"}, repository.FireParams{
		AutomationID: "a1",
		Owner:        "owner1",
		FiredAt:      time.Now().UTC(),
	})
	assert.True(t, errors.Is(err, errs.ErrStateConflict), "err=%v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAutomation_DetachesProposals(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "automations"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "proposals" SET "intent_id"`)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "automations"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	deleted, err := store.DeleteAutomation(context.Background(), "owner1", "a1")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAutomation_OtherOwner(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "automations"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectCommit()

	deleted, err := store.DeleteAutomation(context.Background(), "intruder", "a1")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListPriceSamples_OldestFirst(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "price_samples"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "source", "price", "ts"}).
			AddRow(3, "pyth", "93", now).
			AddRow(2, "pyth", "95", now.Add(-time.Minute)).
			AddRow(1, "pyth", "100", now.Add(-2*time.Minute)))

	items, err := store.ListPriceSamples(context.Background(), now.Add(-12*time.Minute), 500)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, uint64(1), items[0].ID)
	assert.Equal(t, "93", items[2].Price.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLastInteractionAt_None(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .*created_at.* FROM "interactions"`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}))

	ts, err := store.LastInteractionAt(context.Background(), "owner1")
	require.NoError(t, err)
	assert.Nil(t, ts)
	assert.NoError(t, mock.ExpectationsWereMet())
}
