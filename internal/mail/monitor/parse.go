package monitor

import (
	"bytes"
	"io"

	"github.com/emersion/go-message/mail"
	"github.com/pkg/errors"

	_ "github.com/emersion/go-message/charset"
)

// ParsedEmail is the decoded content of one inbox message. Missing parts
// stay empty strings.
type ParsedEmail struct {
	Subject  string
	Sender   string
	Body     string
	HTMLBody string
}

// parseMessage decodes a raw RFC 822 message. Attachments are skipped and
// parts that fail to decode are ignored; the last text/plain and text/html
// inline parts win.
func parseMessage(raw []byte) (*ParsedEmail, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "parse message")
	}

	out := &ParsedEmail{}
	out.Subject, _ = mr.Header.Subject()
	if from, err := mr.Header.Text("From"); err == nil && from != "" {
		out.Sender = from
	} else {
		out.Sender = mr.Header.Get("From")
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Undecodable part; nothing more we can salvage here.
			break
		}
		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			ct, _, err := h.ContentType()
			if err != nil {
				continue
			}
			b, err := io.ReadAll(p.Body)
			if err != nil {
				continue
			}
			switch ct {
			case "text/plain":
				out.Body = string(b)
			case "text/html":
				out.HTMLBody = string(b)
			}
		case *mail.AttachmentHeader:
			_ = h // attachments are never scanned
		}
	}
	return out, nil
}
