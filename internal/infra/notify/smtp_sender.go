package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/arklim/realm-auth-service/internal/core/domain"
	"github.com/arklim/realm-auth-service/internal/infra/config"
)

// ErrCircuitOpen is returned while the SMTP breaker rejects sends.
var ErrCircuitOpen = gobreaker.ErrOpenState

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender delivers email jobs through an SMTP relay guarded by a circuit breaker.
type SMTPSender struct {
	addr     string
	from     string
	auth     smtp.Auth
	breaker  *gobreaker.CircuitBreaker[struct{}]
	sendMail sendMailFunc
	now      func() time.Time
}

// NewSMTPSender builds a sender from cfg. The breaker opens after
// cfg.BreakerFailures consecutive failures and retries after cfg.BreakerOpenDelay.
func NewSMTPSender(cfg config.SMTPSettings, log *zap.Logger) *SMTPSender {
	if log == nil {
		log = zap.NewNop()
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &SMTPSender{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		from:     cfg.From,
		auth:     auth,
		breaker:  breaker,
		sendMail: smtp.SendMail,
		now:      time.Now,
	}
}

func (s *SMTPSender) Name() string {
	return "smtp"
}

func (s *SMTPSender) Send(ctx context.Context, job domain.NotificationJob) error {
	if job.Kind != domain.NotificationKindEmail {
		return fmt.Errorf("%w: smtp cannot send %q", ErrUnsupportedKind, job.Kind)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := s.message(job)
	_, err := s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.sendMail(s.addr, s.auth, s.from, []string{job.To}, msg)
	})
	return err
}

func (s *SMTPSender) message(job domain.NotificationJob) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", job.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", job.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", s.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(job.Body, "\n", "\r\n"))
	return []byte(b.String())
}
