// ABOUTME: Wire types for the shared message store API
// ABOUTME: Summaries for list/search, full messages for get, envelopes for send

package mailstore

import "time"

// Address is a parsed mailbox as the store reports it.
type Address struct {
	Name    string `json:"Name"`
	Address string `json:"Address"`
}

// Summary is the listing shape returned by list and search.
type Summary struct {
	ID      string    `json:"ID"`
	From    Address   `json:"From"`
	To      []Address `json:"To"`
	Cc      []Address `json:"Cc"`
	Bcc     []Address `json:"Bcc"`
	Subject string    `json:"Subject"`
	Created time.Time `json:"Created"`
	Size    int64     `json:"Size"`
	Snippet string    `json:"Snippet"`
}

// Attachment is metadata for one non-inline MIME part. The store keeps
// the bytes; this layer only describes them.
type Attachment struct {
	PartID      string `json:"PartID"`
	FileName    string `json:"FileName"`
	ContentType string `json:"ContentType"`
	Size        int64  `json:"Size"`
}

// Message is the full shape returned by get.
type Message struct {
	Summary
	Text        string       `json:"Text"`
	HTML        string       `json:"HTML"`
	Attachments []Attachment `json:"Attachments"`
}

// Envelope is an outbound message handed to Submit.
type Envelope struct {
	From    Address   `json:"From"`
	To      []Address `json:"To"`
	Cc      []Address `json:"Cc,omitempty"`
	Bcc     []Address `json:"Bcc,omitempty"`
	Subject string    `json:"Subject"`
	Text    string    `json:"Text"`
	HTML    string    `json:"HTML,omitempty"`

	// Threading headers, set when replying.
	InReplyTo  string   `json:"InReplyTo,omitempty"`
	References []string `json:"References,omitempty"`
}

// Addresses flattens every recipient and the sender of a summary into
// raw address strings, for ownership inference.
func (s *Summary) Addresses() []string {
	out := make([]string, 0, 1+len(s.To)+len(s.Cc)+len(s.Bcc))
	out = append(out, s.From.Address)
	for _, a := range s.To {
		out = append(out, a.Address)
	}
	for _, a := range s.Cc {
		out = append(out, a.Address)
	}
	for _, a := range s.Bcc {
		out = append(out, a.Address)
	}
	return out
}
