package service

import (
	"context"
	"errors"

	"EduServer/config"

	"gopkg.in/gomail.v2"
)

// mailNotifier 管理员邮件通知
type mailNotifier struct {
	dialer *gomail.Dialer
	from   string
	to     []string
}

// NewMailNotifier Host 或收件人为空时返回 nil，调用方按未配置处理
func NewMailNotifier(cfg config.MailConfig) Notifier {
	if cfg.Host == "" || len(cfg.To) == 0 {
		return nil
	}
	return &mailNotifier{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		to:     cfg.To,
	}
}

func (n *mailNotifier) Notify(ctx context.Context, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.from == "" {
		return errors.New("mail sender not configured")
	}
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", n.to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	return n.dialer.DialAndSend(m)
}
