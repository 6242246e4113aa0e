package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuditLoggerRejectsIncompleteRecords(t *testing.T) {
	var nilLogger *AuditLogger
	require.Error(t, nilLogger.Record(context.Background(), AuditLog{Action: "a", Entity: "e", EntityID: "1"}))

	logger := NewAuditLogger(nil)
	require.Error(t, logger.Record(context.Background(), AuditLog{Entity: "parking_session", EntityID: "1"}))
	require.Error(t, logger.Record(context.Background(), AuditLog{Action: "session.enter", EntityID: "1"}))
	require.Error(t, logger.Record(context.Background(), AuditLog{Action: "session.enter", Entity: "parking_session"}))
}

func TestNopAudit(t *testing.T) {
	var rec AuditRecorder = NopAudit{}
	require.NoError(t, rec.Record(context.Background(), AuditLog{}))
}
