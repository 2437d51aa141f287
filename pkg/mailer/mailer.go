// Package mailer sends transactional email over SMTP.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/shopspring/decimal"
	"gopkg.in/gomail.v2"

	"github.com/angelmondragon/rafflepot-backend/pkg/config"
)

var winnerTemplate = template.Must(template.New("winner").Parse(`<h2>Congratulations{{if .Name}}, {{.Name}}{{end}}!</h2>
<p>You won <strong>{{.ItemName}}</strong> (worth {{.ItemValue}}) in a RafflePot draw.</p>
<p>Our team will contact you shortly to arrange delivery.</p>
`))

// Mailer implements the winner notifier over SMTP.
type Mailer struct {
	from string
	dial func() (gomail.SendCloser, error)
}

func New(cfg config.SMTPConfig) (*Mailer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp from address required")
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &Mailer{from: cfg.From, dial: d.Dial}, nil
}

// SendWinnerNotice emails the raffle winner.
func (m *Mailer) SendWinnerNotice(ctx context.Context, email, name, itemName string, itemValue decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if email == "" {
		return fmt.Errorf("recipient email required")
	}

	var body bytes.Buffer
	if err := winnerTemplate.Execute(&body, map[string]string{
		"Name":      name,
		"ItemName":  itemName,
		"ItemValue": itemValue.StringFixed(2),
	}); err != nil {
		return fmt.Errorf("render winner notice: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	if name != "" {
		msg.SetAddressHeader("To", email, name)
	} else {
		msg.SetHeader("To", email)
	}
	msg.SetHeader("Subject", fmt.Sprintf("You won %s!", itemName))
	msg.SetBody("text/html", body.String())

	sender, err := m.dial()
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer sender.Close()
	if err := gomail.Send(sender, msg); err != nil {
		return fmt.Errorf("send winner notice: %w", err)
	}
	return nil
}
