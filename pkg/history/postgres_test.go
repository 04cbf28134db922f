package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
)

func TestWithTable_Sanitizes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	p := NewPostgres(mock, WithTable("chat turns"))
	if p.table != `"chat turns"` {
		t.Errorf("table = %q", p.table)
	}
	if NewPostgres(mock).table != defaultTable {
		t.Error("default table not applied")
	}
}

func TestPostgres_EnsureSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS rapidchat_turns").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	if err := NewPostgres(mock).EnsureSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgres_Save(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	e := entry("c1", 1)
	e.ID = "fixed-id"
	mock.ExpectExec("INSERT INTO rapidchat_turns").
		WithArgs("fixed-id", "c1", "t1", "scout", "question 1", "answer 1", "because", e.StartTime, e.EndTime).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := NewPostgres(mock).Save(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgres_SaveError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO").WillReturnError(boom)

	err = NewPostgres(mock).Save(context.Background(), entry("c1", 1))
	if !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}

func TestPostgres_SaveRejectsBadChatID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	if err := NewPostgres(mock).Save(context.Background(), entry("", 1)); !errors.Is(err, ErrInvalidChatID) {
		t.Errorf("err = %v", err)
	}
	// No expectations set: any query would fail here.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

var listColumns = []string{"id", "chat_id", "turn_id", "model", "message", "content", "reasoning", "start_time", "end_time"}

func TestPostgres_ListWithLimit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	start := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("ORDER BY seq DESC LIMIT").
		WithArgs("c1", 2).
		WillReturnRows(pgxmock.NewRows(listColumns).
			AddRow("a", "c1", "t4", "scout", "q4", "a4", "", start, start.Add(time.Second)).
			AddRow("b", "c1", "t5", "scout", "q5", "a5", "r5", start, start.Add(2*time.Second)))

	got, err := NewPostgres(mock).List(context.Background(), "c1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].TurnID != "t4" || got[1].Reasoning != "r5" {
		t.Errorf("got %+v", got)
	}
	if !got[1].EndTime.Equal(start.Add(2 * time.Second)) {
		t.Errorf("end time = %v", got[1].EndTime)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgres_ListAllEmpty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("ORDER BY seq ASC").
		WithArgs("c9").
		WillReturnRows(pgxmock.NewRows(listColumns))

	got, err := NewPostgres(mock).List(context.Background(), "c9", 0)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil", got)
	}
}

func TestPostgres_ListQueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("relation does not exist"))
	if _, err := NewPostgres(mock).List(context.Background(), "c1", 5); err == nil {
		t.Error("expected error")
	}
}
