package audit

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestLogger_LogWritesEntry(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(sqlmock.AnyArg(), "user_1", ActionEventReplay, "event", "req_1", `{"new_event_id":"req_2"}`, "10.0.0.1", "curl/8", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	req := httptest.NewRequest("POST", "/api/v1/webhooks/x/events/req_1/replay", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("User-Agent", "curl/8")

	l := NewLogger(db)
	l.Log(req, "user_1", ActionEventReplay, "event", "req_1", map[string]interface{}{"new_event_id": "req_2"})
	l.Flush()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestLogger_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "user_id", "action", "resource_type", "resource_id", "metadata", "ip_address", "user_agent", "created_at"}).
		AddRow("audit_1", "user_1", ActionWebhookCreate, "webhook", "wh_1", `{"name":"github"}`, "127.0.0.1", "go", int64(100))
	mock.ExpectQuery("SELECT (.+) FROM audit_logs WHERE user_id = ?").
		WithArgs("user_1", 100).
		WillReturnRows(rows)

	logs, err := NewLogger(db).List(context.Background(), "user_1", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("len(logs) = %d, want 1", len(logs))
	}
	if logs[0].Metadata["name"] != "github" {
		t.Errorf("metadata name = %v, want github", logs[0].Metadata["name"])
	}
}
