package notify

import (
	"context"
	"fmt"

	"github.com/spf13/viper"
	"gopkg.in/gomail.v2"
)

// EmailSender delivers verification messages over SMTP.
type EmailSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewEmailSender() *EmailSender {
	viper.SetDefault("smtp.host", "smtp.gmail.com")
	viper.SetDefault("smtp.port", 587)

	return &EmailSender{
		dialer: gomail.NewDialer(
			viper.GetString("smtp.host"),
			viper.GetInt("smtp.port"),
			viper.GetString("smtp.user"),
			viper.GetString("smtp.password"),
		),
		from: viper.GetString("smtp.user"),
	}
}

func (s *EmailSender) Send(ctx context.Context, identity, message string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", identity)
	m.SetHeader("Subject", "BlackCoin verification code")
	m.SetBody("text/plain", message)
	m.AddAlternative("text/html", renderVerificationHTML(message))

	// gomail has no context support; run the dial in a goroutine so the
	// caller's timeout is still honored.
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.dialer.DialAndSend(m)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("smtp send to %s: %w", identity, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func renderVerificationHTML(message string) string {
	return fmt.Sprintf(`<html>
  <body style="font-family: Arial, sans-serif; background-color: #f4f4f4; padding: 20px;">
    <div style="max-width: 600px; margin: auto; background: white; border-radius: 10px; padding: 30px;">
      <h2 style="color: #222; text-align: center;">Welcome to <span style="color: #4CAF50;">BlackCoin</span></h2>
      <p style="font-size: 18px; text-align: center;">%s</p>
      <hr style="margin: 30px 0;">
      <p style="font-size: 12px; color: #777; text-align: center;">If you did not request this, ignore this message.</p>
    </div>
  </body>
</html>`, message)
}
