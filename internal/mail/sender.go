// Package mail は管理者向け通知メールの送信を提供する。
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/url"
	"time"

	"github.com/resend/resend-go/v2"
)

// PasswordReset はパスワード再設定メールの内容。
type PasswordReset struct {
	To        string
	FirstName string
	Token     string
	ExpiresIn time.Duration
}

// Sender はメール送信のインターフェース。
type Sender interface {
	SendPasswordReset(ctx context.Context, msg PasswordReset) error
}

var passwordResetTemplate = template.Must(template.New("reset").Parse(
	`<p>Hello {{.FirstName}},</p>` +
		`<p>Use the code below to reset your admin password. It expires in {{.Minutes}} minute(s).</p>` +
		`<p style="font-size:24px;letter-spacing:4px"><strong>{{.Token}}</strong></p>` +
		`<p>If you did not request this, you can ignore this email.</p>`,
))

// RenderPasswordReset はパスワード再設定メールのHTML本文を生成する。
func RenderPasswordReset(msg PasswordReset) (string, error) {
	minutes := int(msg.ExpiresIn.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	var buf bytes.Buffer
	err := passwordResetTemplate.Execute(&buf, struct {
		FirstName string
		Token     string
		Minutes   int
	}{msg.FirstName, msg.Token, minutes})
	if err != nil {
		return "", fmt.Errorf("failed to render password reset mail: %w", err)
	}
	return buf.String(), nil
}

// ResendSender はResend API経由でメールを送信する。
type ResendSender struct {
	client *resend.Client
	from   string
}

// NewResendSender はResendSenderを生成する。fromは "名前 <address>" 形式でもよい。
func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

// WithBaseURL は送信先APIのベースURLを差し替える。
func (s *ResendSender) WithBaseURL(u *url.URL) *ResendSender {
	s.client.BaseURL = u
	return s
}

// SendPasswordReset はパスワード再設定コードを送信する。
func (s *ResendSender) SendPasswordReset(ctx context.Context, msg PasswordReset) error {
	body, err := RenderPasswordReset(msg)
	if err != nil {
		return err
	}

	sent, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: "Reset your admin password",
		Html:    body,
	})
	if err != nil {
		slog.Error("password reset mail failed",
			slog.String("to", msg.To),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("resend send failed: %w", err)
	}

	slog.Info("password reset mail sent",
		slog.String("message_id", sent.Id),
		slog.String("to", msg.To),
	)
	return nil
}

// LogSender はメールを送信せずログに記録する。RESEND_API_KEY未設定の開発環境で使う。
type LogSender struct{}

// SendPasswordReset は送信内容をログに出力する。トークンは出力しない。
func (LogSender) SendPasswordReset(_ context.Context, msg PasswordReset) error {
	slog.Warn("mail delivery disabled, password reset mail not sent",
		slog.String("to", msg.To),
	)
	return nil
}

// FormatFrom は表示名とアドレスから差出人ヘッダーの値を組み立てる。
func FormatFrom(name, address string) string {
	if name == "" {
		return address
	}
	return fmt.Sprintf("%s <%s>", name, address)
}

var (
	_ Sender = (*ResendSender)(nil)
	_ Sender = LogSender{}
)
