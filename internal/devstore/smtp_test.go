// ABOUTME: Tests for the SMTP ingress
// ABOUTME: Delivers a real message over the wire and checks what got stored

package devstore

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
)

func TestSMTPIngress_StoresDeliveredMessage(t *testing.T) {
	store := newTestMessageStore(t)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	server := NewSMTPServer(store, listener.Addr().String())
	go server.Serve(listener)
	defer server.Close()

	raw := strings.Join([]string{
		"From: Alice <alice@example.com>",
		"To: Bob <bob@example.com>",
		"Cc: carol@example.com",
		"Subject: smtp delivery",
		"Content-Type: text/plain",
		"",
		"delivered over smtp",
	}, "\r\n")

	err = smtp.SendMail(listener.Addr().String(), nil,
		"alice@example.com",
		[]string{"bob@example.com", "carol@example.com", "hidden@example.com"},
		strings.NewReader(raw))
	if err != nil {
		t.Fatalf("SendMail() error = %v", err)
	}

	// Delivery commits before the SMTP dialog completes, but give the
	// store a moment in case the final ack races the assertion.
	var stored int
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msgs, err := store.ListSince(context.Background(), "", 0)
		if err != nil {
			t.Fatalf("ListSince() error = %v", err)
		}
		stored = len(msgs)
		if stored > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if stored != 1 {
		t.Fatalf("stored %d messages, want 1", stored)
	}

	msgs, err := store.ListSince(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("ListSince() error = %v", err)
	}
	msg, err := store.Get(context.Background(), msgs[0].ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if msg.Subject != "smtp delivery" {
		t.Errorf("subject = %q", msg.Subject)
	}
	if msg.From.Address != "alice@example.com" || msg.From.Name != "Alice" {
		t.Errorf("from = %+v", msg.From)
	}
	if !strings.Contains(msg.Text, "delivered over smtp") {
		t.Errorf("text = %q", msg.Text)
	}
	if len(msg.To) != 1 || msg.To[0].Address != "bob@example.com" {
		t.Errorf("to = %+v", msg.To)
	}
	if len(msg.Cc) != 1 || msg.Cc[0].Address != "carol@example.com" {
		t.Errorf("cc = %+v", msg.Cc)
	}

	// The envelope recipient absent from the headers lands in Bcc
	foundHidden := false
	for _, a := range msg.Bcc {
		if a.Address == "hidden@example.com" {
			foundHidden = true
		}
	}
	if !foundHidden {
		t.Errorf("bcc = %+v, want hidden@example.com present", msg.Bcc)
	}
}

func TestParseRaw_AttachmentMetadata(t *testing.T) {
	raw := strings.Join([]string{
		"From: alice@example.com",
		"To: bob@example.com",
		"Subject: files attached",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="frontier"`,
		"",
		"--frontier",
		"Content-Type: text/plain",
		"",
		"see the attachment",
		"--frontier",
		"Content-Type: application/pdf",
		`Content-Disposition: attachment; filename="notes.pdf"`,
		"Content-Transfer-Encoding: base64",
		"",
		"JVBERi0xLjQK",
		"--frontier--",
	}, "\r\n")

	msg := parseRaw("alice@example.com", []string{"bob@example.com"}, []byte(raw))

	if !strings.Contains(msg.Text, "see the attachment") {
		t.Errorf("text = %q", msg.Text)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("attachments = %+v, want 1", msg.Attachments)
	}
	att := msg.Attachments[0]
	if att.FileName != "notes.pdf" {
		t.Errorf("filename = %q", att.FileName)
	}
	if att.ContentType != "application/pdf" {
		t.Errorf("content type = %q", att.ContentType)
	}
	if att.Size == 0 {
		t.Error("attachment size not recorded")
	}
	if att.PartID != "1" {
		t.Errorf("part id = %q", att.PartID)
	}
}

func TestParseRaw_MalformedFallsBackToEnvelope(t *testing.T) {
	msg := parseRaw("sender@example.com", []string{"rcpt@example.com"}, []byte("not a mime message at all\x00"))

	if msg.From.Address != "sender@example.com" {
		t.Errorf("from = %+v", msg.From)
	}
	if msg.ID == "" {
		t.Error("expected an ID even for malformed input")
	}
}
