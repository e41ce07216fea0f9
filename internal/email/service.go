package email

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"time"

	"github.com/redis/go-redis/v9"

	"adcopysurge/internal/logger"
	"adcopysurge/internal/metrics"
)

const (
	queueKey       = "emails"
	failedQueueKey = "emails:failed"
	maxSendTries   = 3
)

type EmailJob struct {
	To      string    `json:"to"`
	Type    string    `json:"type"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Tries   int       `json:"tries"`
	Created time.Time `json:"created"`
}

// Service queues billing notifications in Redis and delivers them over
// SMTP from a background worker, so a slow mail server never stalls a
// request handler.
type Service struct {
	redis    *redis.Client
	from     string
	fromName string
	smtpHost string
	smtpPort string
	smtpUser string
	smtpPass string
	opsEmail string
}

func New(fromEmail, fromName, smtpHost, smtpPort, smtpUser, smtpPass, opsEmail, redisAddr string) *Service {
	return &Service{
		redis: redis.NewClient(&redis.Options{
			Addr: redisAddr,
		}),
		from:     fromEmail,
		fromName: fromName,
		smtpHost: smtpHost,
		smtpPort: smtpPort,
		smtpUser: smtpUser,
		smtpPass: smtpPass,
		opsEmail: opsEmail,
	}
}

func (s *Service) Send(ctx context.Context, to, emailType, subject, body string) error {
	job := EmailJob{
		To:      to,
		Type:    emailType,
		Subject: subject,
		Body:    body,
		Tries:   0,
		Created: time.Now(),
	}

	data, err := json.Marshal(job)
	if err != nil {
		logger.Errorf("Failed to marshal email job: %v", err)
		return err
	}

	if err := s.redis.LPush(ctx, queueKey, string(data)).Err(); err != nil {
		logger.Errorf("Failed to queue email to %s: %v", to, err)
		metrics.RecordEmail(emailType, "queue_failed")
		return err
	}

	metrics.RecordEmail(emailType, "queued")
	logger.Infof("Email queued: %s to %s", subject, to)
	return nil
}

func (s *Service) Start(ctx context.Context) {
	logger.Info("Email service started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Email service stopped")
			return
		default:
			s.processNext(ctx)
		}
	}
}

func (s *Service) processNext(ctx context.Context) {
	result, err := s.redis.BRPop(ctx, 2*time.Second, queueKey).Result()
	if err != nil {
		return
	}

	if length, err := s.redis.LLen(ctx, queueKey).Result(); err == nil {
		metrics.EmailQueueLength.Set(float64(length))
	}

	var job EmailJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		logger.Errorf("Bad email data: %v", err)
		return
	}

	job.Tries++
	logger.Infof("Sending email to %s (attempt %d)", job.To, job.Tries)
	if err := s.sendNow(job); err != nil {
		logger.Errorf("Failed to send email to %s: %v", job.To, err)

		if job.Tries < maxSendTries {
			time.Sleep(5 * time.Second)
			data, _ := json.Marshal(job)
			s.redis.LPush(context.Background(), queueKey, data)
			logger.Infof("Retrying email to %s (attempt %d)", job.To, job.Tries+1)
		} else {
			logger.Errorf("Email to %s failed after %d attempts", job.To, maxSendTries)
			metrics.RecordEmail(job.Type, "failed")
			s.saveFailed(job, err)
		}
		return
	}

	metrics.RecordEmail(job.Type, "sent")
	logger.Infof("Email sent successfully to %s", job.To)
}

func (s *Service) sendNow(job EmailJob) error {
	message := fmt.Sprintf("From: %s <%s>\r\n", s.fromName, s.from)
	message += fmt.Sprintf("To: %s\r\n", job.To)
	message += fmt.Sprintf("Subject: %s\r\n", job.Subject)
	message += "\r\n" + job.Body

	var auth smtp.Auth
	if s.smtpUser != "" && s.smtpPass != "" {
		auth = smtp.PlainAuth("", s.smtpUser, s.smtpPass, s.smtpHost)
	}

	addr := s.smtpHost + ":" + s.smtpPort
	return smtp.SendMail(addr, auth, s.from, []string{job.To}, []byte(message))
}

func (s *Service) saveFailed(job EmailJob, err error) {
	failed := map[string]interface{}{
		"job":   job,
		"error": err.Error(),
		"time":  time.Now(),
	}
	data, _ := json.Marshal(failed)
	s.redis.LPush(context.Background(), failedQueueKey, data)
	logger.Errorf("Email moved to failed queue: %s", job.To)
}

func (s *Service) QueueLength(ctx context.Context) int64 {
	length, _ := s.redis.LLen(ctx, queueKey).Result()
	return length
}

func (s *Service) Close() error {
	return s.redis.Close()
}

// SendLowCreditWarning tells a customer their balance dropped to or below
// the configured threshold.
func (s *Service) SendLowCreditWarning(ctx context.Context, to string, balance int64) error {
	subject := "Your AdCopySurge credits are running low"
	body := fmt.Sprintf(`Hi,

You have %d credits remaining this month.

Top up with bonus credits or upgrade your plan to keep analyzing
without interruption.

- The AdCopySurge Team`, balance)

	return s.Send(ctx, to, "low_credit_warning", subject, body)
}

// SendRefundFailureAlert pages the operations inbox when a compensating
// refund could not be applied and the ledger needs manual reconciliation.
func (s *Service) SendRefundFailureAlert(ctx context.Context, accountID string, kind string, amount int64, cause string) error {
	subject := fmt.Sprintf("[ACTION REQUIRED] Refund failed for account %s", accountID)
	body := fmt.Sprintf(`A compensating refund could not be applied.

Account:   %s
Operation: %s
Credits:   %d
Error:     %s
Time:      %s

The account was charged for an analysis that failed. Reconcile manually
via the admin credits endpoints.`, accountID, kind, amount, cause, time.Now().UTC().Format(time.RFC3339))

	return s.Send(ctx, s.opsEmail, "refund_failure_alert", subject, body)
}

// SendMonthlyResetNotice tells a customer their allowance was refreshed.
func (s *Service) SendMonthlyResetNotice(ctx context.Context, to string, allowance int64) error {
	subject := "Your AdCopySurge credits have been refreshed"
	body := fmt.Sprintf(`Hi,

Your monthly allowance of %d credits is ready to use.

Happy analyzing!

- The AdCopySurge Team`, allowance)

	return s.Send(ctx, to, "monthly_reset_notice", subject, body)
}
