package memory

import (
	"context"
	"errors"
	"testing"

	"tradeflow/internal/models"
	"tradeflow/internal/repository"
)

func TestSaveMutation_VersionAndTxHash(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.InsertTrade(ctx, &models.TradeRecord{ID: "t1", Name: "Wheat", Version: 1}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	next := &models.TradeRecord{ID: "t1", Name: "Wheat", Version: 2}
	if err := s.SaveMutation(ctx, next, &models.TxLog{TradeID: "t1", TxHash: "0xaa"}, nil); err != nil {
		t.Fatalf("save: %v", err)
	}

	stale := &models.TradeRecord{ID: "t1", Name: "Wheat", Version: 2}
	if err := s.SaveMutation(ctx, stale, &models.TxLog{TradeID: "t1", TxHash: "0xbb"}, nil); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("err=%v want=%v", err, repository.ErrConflict)
	}

	replay := &models.TradeRecord{ID: "t1", Name: "Wheat renamed", Version: 3}
	if err := s.SaveMutation(ctx, replay, &models.TxLog{TradeID: "t1", TxHash: "0xaa"}, &models.Notification{ID: "n1"}); !errors.Is(err, repository.ErrDuplicateTx) {
		t.Fatalf("err=%v want=%v", err, repository.ErrDuplicateTx)
	}
	rec, err := s.GetTrade(ctx, "t1")
	if err != nil || rec == nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Version != 2 || rec.Name != "Wheat" {
		t.Fatalf("version=%d name=%s want=2/Wheat", rec.Version, rec.Name)
	}
	logs, _ := s.ListTxLogs(ctx, "t1")
	if len(logs) != 1 {
		t.Fatalf("logs=%d want=1", len(logs))
	}
	if items, _ := s.ListNotifications(ctx, repository.ListNotificationsParams{}); len(items) != 0 {
		t.Fatalf("notifications=%d want=0", len(items))
	}
}
