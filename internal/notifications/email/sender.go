// Package email sends incident notifications over SMTP.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/bissquit/incident-tracker/internal/notifications"
	"github.com/google/uuid"
)

const (
	defaultPort        = 587
	defaultDialTimeout = 10 * time.Second
)

// Config holds email sender configuration.
type Config struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromAddress  string
	DialTimeout  time.Duration
	// InsecureSkipVerify disables certificate checks for STARTTLS (local relays only).
	InsecureSkipVerify bool
}

// Sender delivers notifications to the responsible person's mailbox.
type Sender struct {
	config Config
	auth   smtp.Auth
	now    func() time.Time
}

// NewSender validates config and creates a sender. A disabled sender
// accepts and drops every notification.
func NewSender(config Config) (*Sender, error) {
	if config.Enabled {
		switch {
		case config.SMTPHost == "":
			return nil, errors.New("email sender: SMTP host is required when enabled")
		case config.FromAddress == "":
			return nil, errors.New("email sender: from address is required when enabled")
		}
	}

	if config.SMTPPort == 0 {
		config.SMTPPort = defaultPort
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = defaultDialTimeout
	}

	s := &Sender{config: config, now: time.Now}
	if config.SMTPUser != "" && config.SMTPPassword != "" {
		s.auth = smtp.PlainAuth("", config.SMTPUser, config.SMTPPassword, config.SMTPHost)
	}

	slog.Info("email sender configured",
		"enabled", config.Enabled,
		"smtp_addr", s.addr(),
		"from_address", config.FromAddress,
		"auth", s.auth != nil,
	)
	return s, nil
}

// Type returns the channel type.
func (s *Sender) Type() notifications.ChannelType {
	return notifications.ChannelTypeEmail
}

// Send mails the notification to notification.To. SMTP 4xx replies and
// network failures are reported as retryable.
func (s *Sender) Send(ctx context.Context, n notifications.Notification) error {
	if !s.config.Enabled {
		slog.Warn("email sender disabled, dropping notification", "to", n.To)
		return nil
	}
	if n.To == "" {
		return notifications.NewNonRetryableError(notifications.ErrEmptyTarget)
	}

	err := s.transmit(ctx, n.To, s.buildMessage(n.To, n.Subject, n.Body))
	switch {
	case err == nil:
		return nil
	case IsRetryable(err):
		return notifications.NewRetryableError(err)
	default:
		return notifications.NewNonRetryableError(err)
	}
}

func (s *Sender) addr() string {
	return net.JoinHostPort(s.config.SMTPHost, strconv.Itoa(s.config.SMTPPort))
}

// buildMessage renders an RFC 5322 plain text message. Header values are
// stripped of line breaks; non-ASCII subjects are Q-encoded.
func (s *Sender) buildMessage(to, subject, body string) []byte {
	from := s.config.FromAddress
	headers := [][2]string{
		{"From", from},
		{"To", to},
		{"Subject", mime.QEncoding.Encode("utf-8", sanitizeHeader(subject))},
		{"Date", s.now().UTC().Format(time.RFC1123Z)},
		{"Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), hostOf(extractEmail(from)))},
		{"MIME-Version", "1.0"},
		{"Content-Type", `text/plain; charset="utf-8"`},
	}

	var msg strings.Builder
	for _, h := range headers {
		msg.WriteString(h[0] + ": " + h[1] + "\r\n")
	}
	msg.WriteString("\r\n")
	msg.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(msg.String())
}

// transmit runs one SMTP session: STARTTLS when offered, AUTH when configured.
func (s *Sender) transmit(ctx context.Context, to string, msg []byte) error {
	dialer := &net.Dialer{Timeout: s.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr())
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.config.SMTPHost)
	if err != nil {
		return fmt.Errorf("smtp greeting: %w", err)
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok {
		err := client.StartTLS(&tls.Config{
			ServerName:         s.config.SMTPHost,
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: s.config.InsecureSkipVerify, //nolint:gosec // opt-in for local relays
		})
		if err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if s.auth != nil {
		if err := client.Auth(s.auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(extractEmail(s.config.FromAddress)); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(extractEmail(to)); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("end data: %w", err)
	}
	return client.Quit()
}

// extractEmail returns the bare address of "Name <addr>" style values.
// Unparseable input is returned unchanged.
func extractEmail(address string) string {
	if a, err := mail.ParseAddress(address); err == nil {
		return a.Address
	}
	start := strings.Index(address, "<")
	end := strings.LastIndex(address, ">")
	if start != -1 && end > start {
		return address[start+1 : end]
	}
	return address
}

func hostOf(address string) string {
	if _, host, ok := strings.Cut(address, "@"); ok && host != "" {
		return host
	}
	return "localhost"
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

// IsRetryable reports whether an SMTP failure is transient: timeouts,
// connection errors and 4xx replies.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code/100 == 4
	}
	return replyCode(err.Error())/100 == 4
}

// replyCode parses a leading three digit SMTP reply code, or returns 0.
func replyCode(s string) int {
	if len(s) < 3 {
		return 0
	}
	code, err := strconv.Atoi(s[:3])
	if err != nil {
		return 0
	}
	return code
}
