package indexer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"nftlend/core/events"
)

func newTestIndexer(t *testing.T) *Indexer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := Open(DriverSQLite, dsn)
	require.NoError(t, err)
	idx, err := New(db, nil)
	require.NoError(t, err)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	idx.SetNowFunc(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})
	return idx
}

func TestIndexerRecordsLoanHistory(t *testing.T) {
	idx := newTestIndexer(t)
	ctx := context.Background()

	idx.Emit(events.New("coordinator.loan.registered").With("loanId", "1").With("contract", "0xabc"))
	idx.Emit(events.New("loans.started").With("loanId", "1").With("contract", "0xabc").With("principal", "100"))
	idx.Emit(events.New("loans.started").With("loanId", "2").With("contract", "0xabc"))
	idx.Emit(events.New("refinance.completed").With("oldLoanId", "1").With("newLoanId", "3").With("oldContract", "0xabc"))
	idx.Emit(events.New("bank.transfer").With("amount", "5"))

	history, err := idx.EventsForLoan(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, "coordinator.loan.registered", history[0].Type)
	require.Equal(t, "loans.started", history[1].Type)
	require.Equal(t, "refinance.completed", history[2].Type)
	require.Equal(t, "0xabc", history[2].Contract)

	attrs, err := history[1].Attrs()
	require.NoError(t, err)
	require.Equal(t, "100", attrs["principal"])

	replacement, err := idx.EventsForLoan(ctx, 3)
	require.NoError(t, err)
	require.Len(t, replacement, 1)
	require.NotNil(t, replacement[0].RelatedLoanID)
	require.EqualValues(t, 3, *replacement[0].RelatedLoanID)
}

func TestIndexerListings(t *testing.T) {
	idx := newTestIndexer(t)
	ctx := context.Background()
	for n := 0; n < 5; n++ {
		idx.Emit(events.New("loans.started").With("loanId", fmt.Sprint(n+1)))
	}
	idx.Emit(events.New("loans.repaid").With("loanId", "1"))

	recent, err := idx.RecentEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "loans.repaid", recent[0].Type)
	require.EqualValues(t, 6, recent[0].Seq)
	require.True(t, recent[0].CreatedAt.After(recent[1].CreatedAt))

	started, err := idx.EventsOfType(ctx, "loans.started", 0)
	require.NoError(t, err)
	require.Len(t, started, 5)
	require.EqualValues(t, 5, *started[0].LoanID)
}

func TestIndexerResumesSequence(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := Open(DriverSQLite, dsn)
	require.NoError(t, err)
	first, err := New(db, nil)
	require.NoError(t, err)
	_, err = first.Record(events.New("loans.started"))
	require.NoError(t, err)

	second, err := New(db, nil)
	require.NoError(t, err)
	rec, err := second.Record(events.New("loans.repaid"))
	require.NoError(t, err)
	require.EqualValues(t, 2, rec.Seq)
	require.NotEqual(t, uuid.Nil, rec.ID)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	require.ErrorIs(t, err, ErrUnknownDriver)
}
