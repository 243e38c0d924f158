package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"perpsim/src/model"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		sqlDB.Close()
		t.Fatalf("failed to open gorm DB with sqlmock: %v", err)
	}

	return gdb, mock
}

func closedPosition() model.Position {
	exitPrice := 3120.0
	exitTime := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	return model.Position{
		ID:          "pos-1",
		Symbol:      "ETH",
		Side:        model.SideLong,
		EntryPrice:  3000,
		Size:        0.0666,
		Leverage:    2,
		EntryTime:   exitTime.Add(-2 * time.Hour),
		Status:      model.PositionStatusClosed,
		ExitPrice:   &exitPrice,
		ExitTime:    &exitTime,
		RealizedPnl: 15.2,
		FeesPaid:    0.4,
		FundingPaid: 0.1,
		CloseReason: "take_profit",
	}
}

func TestTradeRepositoryArchive(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTradeRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "trade_records"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	if err := repo.Archive(context.Background(), closedPosition()); err != nil {
		t.Fatalf("expected archive to succeed, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTradeRepositoryArchivePanicsOnOpenPosition(t *testing.T) {
	db, _ := newMockDB(t)
	repo := NewTradeRepository(db)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when archiving an open position")
		}
	}()
	repo.Archive(context.Background(), model.Position{Status: model.PositionStatusOpen})
}

func TestTradeRepositoryRecent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTradeRepository(db)

	rows := sqlmock.NewRows([]string{"id", "position_id", "symbol", "side", "realized_pnl"}).
		AddRow(2, "pos-2", "ETH", "short", -4.1).
		AddRow(1, "pos-1", "ETH", "long", 15.2)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "trade_records" ORDER BY closed_at DESC LIMIT $1`)).
		WithArgs(20).
		WillReturnRows(rows)

	records, err := repo.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("expected recent to succeed, got %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].PositionID != "pos-2" {
		t.Fatalf("records not newest first: %+v", records)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTradeRepositorySearch(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTradeRepository(db)

	symbol := "ETH"
	side := "long"
	after := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "position_id", "symbol", "side", "realized_pnl"}).
		AddRow(1, "pos-1", "ETH", "long", 15.2)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "trade_records" WHERE symbol = $1 AND side = $2 AND closed_at >= $3 ORDER BY closed_at DESC, id DESC`)).
		WithArgs(symbol, side, after).
		WillReturnRows(rows)

	records, err := repo.Search(context.Background(), TradeSearchOptions{
		Symbol:      &symbol,
		Side:        &side,
		ClosedAfter: &after,
	})
	if err != nil {
		t.Fatalf("expected search to succeed, got %v", err)
	}
	if len(records) != 1 || records[0].Symbol != "ETH" {
		t.Fatalf("unexpected results: %+v", records)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
