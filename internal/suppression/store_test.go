package suppression

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestStoreIsBlocked(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := &Store{pool: mock}

	mock.ExpectQuery("SELECT 1 FROM blocked_numbers").
		WithArgs("biz-1", "+15550001").
		WillReturnRows(pgxmock.NewRows([]string{"one"}).AddRow(1))
	blocked, err := store.IsBlocked(context.Background(), "biz-1", "+15550001")
	if err != nil || !blocked {
		t.Fatalf("expected blocked=true, got %v err=%v", blocked, err)
	}

	mock.ExpectQuery("SELECT 1 FROM blocked_numbers").
		WithArgs("biz-1", "+15550002").
		WillReturnRows(pgxmock.NewRows([]string{"one"}))
	blocked, err = store.IsBlocked(context.Background(), "biz-1", "+15550002")
	if err != nil || blocked {
		t.Fatalf("expected blocked=false, got %v err=%v", blocked, err)
	}
}

func TestStoreContactStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := &Store{pool: mock}

	mock.ExpectQuery("SELECT bypass_cooldown FROM contacts").
		WithArgs("biz-1", "+15550001").
		WillReturnRows(pgxmock.NewRows([]string{"bypass_cooldown"}).AddRow(true))
	exists, bypass, err := store.ContactStatus(context.Background(), "biz-1", "+15550001")
	if err != nil || !exists || !bypass {
		t.Fatalf("expected contact with bypass, got exists=%v bypass=%v err=%v", exists, bypass, err)
	}

	mock.ExpectQuery("SELECT bypass_cooldown FROM contacts").
		WithArgs("biz-1", "+15550009").
		WillReturnRows(pgxmock.NewRows([]string{"bypass_cooldown"}))
	exists, bypass, err = store.ContactStatus(context.Background(), "biz-1", "+15550009")
	if err != nil || exists || bypass {
		t.Fatalf("expected unknown caller, got exists=%v bypass=%v err=%v", exists, bypass, err)
	}
}

func TestStoreInsertRecord(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := &Store{pool: mock}

	mock.ExpectExec("INSERT INTO suppression_records").
		WithArgs(pgxmock.AnyArg(), "biz-1", "+15550001", "cooldown", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.InsertRecord(context.Background(), Record{
		BusinessID:  "biz-1",
		CallerPhone: "+15550001",
		Reason:      ReasonCooldown,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		t.Fatalf("insert record: %v", err)
	}
}

func TestStoreListRecords(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := &Store{pool: mock}

	now := time.Now()
	mock.ExpectQuery("SELECT business_id, caller_phone, reason, created_at").
		WithArgs("biz-1", 10).
		WillReturnRows(pgxmock.NewRows([]string{"business_id", "caller_phone", "reason", "created_at"}).
			AddRow("biz-1", "+15550001", "blocked", now).
			AddRow("biz-1", "+15550002", "cooldown", now.Add(-time.Minute)))

	records, err := store.ListRecords(context.Background(), "biz-1", 10)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(records) != 2 || records[0].Reason != ReasonBlocked {
		t.Fatalf("unexpected records: %+v", records)
	}
}
