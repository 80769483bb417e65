// ABOUTME: SMTP ingress for the local shared-store stand-in
// ABOUTME: Parses incoming MIME and stores it tenant-agnostically, no auth

package devstore

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"github.com/2389/mailgate/internal/mailstore"
)

const smtpDomain = "fake-mailstore"

// SMTPServer accepts mail over SMTP and writes it into the message store.
type SMTPServer struct {
	smtp   *smtp.Server
	logger *slog.Logger
}

// NewSMTPServer creates an SMTP ingress listening on addr.
func NewSMTPServer(store *MessageStore, addr string) *SMTPServer {
	backend := &smtpBackend{store: store, logger: slog.Default().With("component", "devstore-smtp")}

	server := smtp.NewServer(backend)
	server.Addr = addr
	server.Domain = smtpDomain
	server.AllowInsecureAuth = true
	server.ReadTimeout = 15 * time.Second
	server.WriteTimeout = 15 * time.Second
	server.MaxRecipients = 100
	server.MaxMessageBytes = 25 << 20

	return &SMTPServer{smtp: server, logger: backend.logger}
}

// ListenAndServe blocks serving SMTP until Close.
func (s *SMTPServer) ListenAndServe() error {
	s.logger.Info("smtp ingress listening", "addr", s.smtp.Addr)
	return s.smtp.ListenAndServe()
}

// Serve accepts connections on an existing listener.
func (s *SMTPServer) Serve(l net.Listener) error {
	s.logger.Info("smtp ingress listening", "addr", l.Addr().String())
	return s.smtp.Serve(l)
}

// Close shuts the SMTP listener down.
func (s *SMTPServer) Close() error {
	return s.smtp.Close()
}

type smtpBackend struct {
	store  *MessageStore
	logger *slog.Logger
}

func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{backend: b}, nil
}

type smtpSession struct {
	backend *smtpBackend
	from    string
	to      []string
}

func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.from = strings.ToLower(strings.TrimSpace(from))
	return nil
}

func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.to = append(s.to, strings.ToLower(strings.TrimSpace(to)))
	return nil
}

func (s *smtpSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	msg := parseRaw(s.from, s.to, data)
	if err := s.backend.store.Insert(context.Background(), msg); err != nil {
		s.backend.logger.Error("storing smtp message", "error", err)
		return err
	}

	return nil
}

func (s *smtpSession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *smtpSession) Logout() error {
	return nil
}

// parseRaw extracts headers and bodies from a raw RFC822 message. Parse
// failures degrade to envelope data rather than rejecting the message;
// a local stand-in should accept whatever a real store would.
func parseRaw(envelopeFrom string, envelopeTo []string, raw []byte) *mailstore.Message {
	msg := &mailstore.Message{
		Summary: mailstore.Summary{
			ID:      uuid.NewString(),
			From:    mailstore.Address{Address: envelopeFrom},
			Size:    int64(len(raw)),
			Created: time.Now().UTC(),
		},
	}

	reader, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		for _, addr := range envelopeTo {
			msg.To = append(msg.To, mailstore.Address{Address: addr})
		}
		return msg
	}

	if subject, err := reader.Header.Subject(); err == nil {
		msg.Subject = subject
	}
	if fromList, err := reader.Header.AddressList("From"); err == nil && len(fromList) > 0 {
		msg.From = mailstore.Address{
			Name:    fromList[0].Name,
			Address: strings.ToLower(fromList[0].Address),
		}
	}

	headerAddrs := func(name string) []mailstore.Address {
		list, err := reader.Header.AddressList(name)
		if err != nil {
			return nil
		}
		out := make([]mailstore.Address, 0, len(list))
		for _, a := range list {
			out = append(out, mailstore.Address{Name: a.Name, Address: strings.ToLower(a.Address)})
		}
		return out
	}
	msg.To = headerAddrs("To")
	msg.Cc = headerAddrs("Cc")
	msg.Bcc = headerAddrs("Bcc")

	// Envelope recipients missing from the headers are Bcc in effect
	seen := make(map[string]bool)
	for _, a := range msg.Addresses() {
		seen[a] = true
	}
	for _, addr := range envelopeTo {
		if !seen[addr] {
			msg.Bcc = append(msg.Bcc, mailstore.Address{Address: addr})
		}
	}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch header := part.Header.(type) {
		case *mail.InlineHeader:
			mediaType, _, _ := header.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}

			switch {
			case strings.HasPrefix(mediaType, "text/plain") || mediaType == "":
				if msg.Text == "" {
					msg.Text = string(body)
				} else {
					msg.Text += "\n" + string(body)
				}
			case strings.HasPrefix(mediaType, "text/html"):
				if msg.HTML == "" {
					msg.HTML = string(body)
				} else {
					msg.HTML += "\n" + string(body)
				}
			}
		case *mail.AttachmentHeader:
			filename, _ := header.Filename()
			mediaType, _, _ := header.ContentType()
			size, err := io.Copy(io.Discard, part.Body)
			if err != nil {
				continue
			}
			msg.Attachments = append(msg.Attachments, mailstore.Attachment{
				PartID:      strconv.Itoa(len(msg.Attachments) + 1),
				FileName:    filename,
				ContentType: mediaType,
				Size:        size,
			})
		}
	}

	msg.Snippet = makeSnippet(msg.Text)
	return msg
}
