package email

import (
	"context"
	"os"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adcopysurge/internal/logger"
)

func TestMain(m *testing.M) {
	logger.Init()

	code := m.Run()
	os.Exit(code)
}

func newTestService(rdb *redis.Client) *Service {
	return &Service{
		redis:    rdb,
		from:     "noreply@adcopysurge.com",
		fromName: "AdCopySurge",
		smtpHost: "smtp.test.com",
		smtpPort: "587",
		smtpUser: "test@example.com",
		smtpPass: "password",
		opsEmail: "ops@adcopysurge.com",
	}
}

func TestSend(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()

	mock.Regexp().ExpectLPush("emails", `.*`).SetVal(1)

	svc := newTestService(db)

	err := svc.Send(ctx, "user@example.com", "test", "Hello", "Test body")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendLowCreditWarning(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()

	// Pin the recipient and the job type inside the queued payload.
	mock.Regexp().ExpectLPush("emails", `.*user@example\.com.*low_credit_warning.*`).SetVal(1)

	svc := newTestService(db)

	err := svc.SendLowCreditWarning(ctx, "user@example.com", 3)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSendRefundFailureAlertGoesToOps(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()

	// Alerts go to the ops inbox, not the customer.
	mock.Regexp().ExpectLPush("emails", `.*ops@adcopysurge\.com.*refund_failure_alert.*`).SetVal(1)

	svc := newTestService(db)

	err := svc.SendRefundFailureAlert(ctx, "acc-123", "full_analysis", 2, "lock timeout")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSendMonthlyResetNotice(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()

	mock.Regexp().ExpectLPush("emails", `.*`).SetVal(1)

	svc := newTestService(db)

	err := svc.SendMonthlyResetNotice(ctx, "user@example.com", 600)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueLength(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()

	mock.ExpectLLen("emails").SetVal(5)

	svc := newTestService(db)

	length := svc.QueueLength(ctx)
	assert.Equal(t, int64(5), length)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueLengthZero(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()

	mock.ExpectLLen("emails").SetVal(0)

	svc := newTestService(db)

	length := svc.QueueLength(ctx)
	assert.Equal(t, int64(0), length)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()

	mock.Regexp().ExpectLPush("emails", `.*`).SetErr(assert.AnError)

	svc := newTestService(db)

	err := svc.Send(ctx, "user@example.com", "test", "Hello", "Test body")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
