// Package sender отправляет письма о событиях жизненного цикла подписки.
package sender

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wellmind/billing-service/internal/lib/sl"
	smtplib "github.com/wellmind/billing-service/internal/lib/smtp"
	"github.com/wellmind/billing-service/internal/models"
)

type SenderService struct {
	transport smtplib.TransportInterface
	log       *slog.Logger
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(log *slog.Logger, transport smtplib.TransportInterface) *SenderService {
	return &SenderService{
		transport: transport,
		log:       log,
	}
}

// SendLifecycleEvent разбирает событие из очереди и отправляет письмо,
// соответствующее его виду.
func (s *SenderService) SendLifecycleEvent(body []byte) error {
	var event models.LifecycleEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	subject, bodyText, err := composeEmail(event)
	if err != nil {
		return err
	}
	return s.sendEmail([]string{event.Email}, subject, bodyText)
}

func composeEmail(event models.LifecycleEvent) (subject, bodyText string, err error) {
	switch event.Kind {
	case "trial_rolled":
		subject = "Пробный период завершён — подписка активна"
		bodyText = fmt.Sprintf("Здравствуйте, %s!\n\nВаш пробный период закончился, и начался оплачиваемый период подписки.\n\nСписания будут выполняться по выбранному тарифу.",
			event.Username)
	case "plan_ended":
		subject = "Подписка завершена"
		bodyText = fmt.Sprintf("Здравствуйте, %s!\n\nОплаченный период вашей подписки закончился.\n\nЧтобы продолжить пользоваться сервисом, оформите подписку заново.",
			event.Username)
	default:
		return "", "", fmt.Errorf("unknown lifecycle event kind: %s", event.Kind)
	}
	return subject, bodyText, nil
}

func (s *SenderService) sendEmail(to []string, subject, bodyText string) error {
	msg := strings.Join([]string{
		"From: " + s.transport.GetSMTPUser(),
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Mail(s.transport.GetSMTPUser()); err != nil {
		s.log.Error("failed to set MAIL FROM", "from", s.transport.GetSMTPUser(), sl.Err(err))
		return err
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", "recipient", addr, sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get data writer", sl.Err(err))
		return err
	}
	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}
	if err = wc.Close(); err != nil {
		s.log.Error("failed to close data writer", sl.Err(err))
		return err
	}
	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent successfully", "to", to, "subject", subject)
	return nil
}
