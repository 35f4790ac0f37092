// Package email implements the SMTP, SendGrid and Postmark email providers.
package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"notification-dispatch/internal/domain/entity"
)

// buildMIME renders msg as an RFC 5322 message. Bcc recipients are left out of the headers.
func buildMIME(msg *entity.EmailMessage, from string, now time.Time) ([]byte, error) {
	var buf bytes.Buffer

	header := textproto.MIMEHeader{}
	header.Set("From", from)
	header.Set("To", strings.Join(msg.To, ", "))
	if len(msg.CC) > 0 {
		header.Set("Cc", strings.Join(msg.CC, ", "))
	}
	header.Set("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header.Set("Date", now.Format(time.RFC1123Z))
	header.Set("Message-ID", fmt.Sprintf("<%s@notification-dispatch>", msg.NotificationID))
	header.Set("MIME-Version", "1.0")
	if msg.Priority != 0 {
		header.Set("X-Priority", strconv.Itoa(int(msg.Priority)))
	}
	if msg.NotificationID != "" {
		header.Set("X-Notification-ID", msg.NotificationID)
	}

	if len(msg.Attachments) == 0 {
		header.Set("Content-Type", bodyContentType(msg.IsHTML))
		header.Set("Content-Transfer-Encoding", "quoted-printable")
		writeHeader(&buf, header)
		if err := writeQuotedPrintable(&buf, msg.Body); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	header.Set("Content-Type", "multipart/mixed; boundary="+mw.Boundary())
	// the top-level header goes in front of the multipart body
	var head bytes.Buffer
	writeHeader(&head, header)

	body, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {bodyContentType(msg.IsHTML)},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return nil, fmt.Errorf("create body part: %w", err)
	}
	if err := writeQuotedPrintable(body, msg.Body); err != nil {
		return nil, err
	}

	for _, a := range msg.Attachments {
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {mime.FormatMediaType(a.ContentType, map[string]string{"name": a.Filename})},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename})},
			"Content-Transfer-Encoding": {"base64"},
		})
		if err != nil {
			return nil, fmt.Errorf("create attachment part %s: %w", a.Filename, err)
		}
		if err := writeBase64Lines(part, a.Content); err != nil {
			return nil, fmt.Errorf("write attachment %s: %w", a.Filename, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	return append(head.Bytes(), buf.Bytes()...), nil
}

func bodyContentType(html bool) string {
	if html {
		return "text/html; charset=UTF-8"
	}
	return "text/plain; charset=UTF-8"
}

func writeHeader(buf *bytes.Buffer, h textproto.MIMEHeader) {
	order := []string{"From", "To", "Cc", "Subject", "Date", "Message-ID", "MIME-Version",
		"X-Priority", "X-Notification-ID", "Content-Type", "Content-Transfer-Encoding"}
	for _, k := range order {
		if v := h.Get(k); v != "" {
			fmt.Fprintf(buf, "%s: %s\r\n", k, v)
		}
	}
	buf.WriteString("\r\n")
}

func writeQuotedPrintable(w io.Writer, body string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(body)); err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	return nil
}

// writeBase64Lines wraps base64 output at 76 characters.
func writeBase64Lines(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		if _, err := fmt.Fprintf(w, "%s\r\n", encoded[:76]); err != nil {
			return err
		}
		encoded = encoded[76:]
	}
	_, err := fmt.Fprintf(w, "%s\r\n", encoded)
	return err
}
