// Package prompt builds the chat messages sent to the review judge: a fixed
// one-shot template followed by a single request describing one review.
package prompt

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/TobiSchelling/reviewguard/internal/records"
)

// Absent stands in for a location field the row does not have.
const Absent = "N/A"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Messages is an ordered conversation.
type Messages []Message

// System returns the concatenated system messages.
func (m Messages) System() string {
	var parts []string
	for _, msg := range m {
		if msg.Role == RoleSystem {
			parts = append(parts, msg.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Turns returns the non-system messages in order.
func (m Messages) Turns() Messages {
	out := make(Messages, 0, len(m))
	for _, msg := range m {
		if msg.Role != RoleSystem {
			out = append(out, msg)
		}
	}
	return out
}

// Hash is a stable digest of roles and contents, used as a cache key.
func (m Messages) Hash() string {
	h := sha256.New()
	for _, msg := range m {
		fmt.Fprintf(h, "%s\x00%d\x00%s\x00", msg.Role, len(msg.Content), msg.Content)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Template is the fixed part of every request. It is a plain value: Build
// never modifies it and every call gets its own message slice.
type Template struct {
	Version         string
	Instruction     string
	ExampleAnswer   string
	ExampleInput    string
	Acknowledgement string
}

// Messages returns a fresh copy of the template conversation.
func (t Template) Messages() Messages {
	return Messages{
		{Role: RoleSystem, Content: t.Instruction},
		{Role: RoleAssistant, Content: t.ExampleAnswer},
		{Role: RoleUser, Content: t.ExampleInput},
		{Role: RoleAssistant, Content: t.Acknowledgement},
	}
}

// Build returns the template conversation with one trailing user request for
// row. Identical inputs give identical messages.
func Build(row records.Row, tmpl Template) Messages {
	msgs := tmpl.Messages()
	return append(msgs, Message{Role: RoleUser, Content: RequestText(row)})
}

// RequestText renders the per-review request. Location fields appear in a
// fixed order and missing ones are written as Absent.
func RequestText(row records.Row) string {
	var b strings.Builder
	b.WriteString("Review:\n")
	fmt.Fprintf(&b, "\"%s\"\n", row.Text)
	b.WriteString("\nLocation:\n")
	fmt.Fprintf(&b, "Name: %s\n", orAbsent(row.Name))
	fmt.Fprintf(&b, "Category: %s\n", orAbsent(row.CategoryText()))
	fmt.Fprintf(&b, "Address: %s\n", orAbsent(row.Address))
	fmt.Fprintf(&b, "Opening Hours: %s\n", orAbsent(row.HoursText()))
	fmt.Fprintf(&b, "Timestamp: %s\n", orAbsent(row.Time))
	b.WriteString("\nReturn ONLY the JSON object as specified.")
	return b.String()
}

func orAbsent(s string) string {
	if strings.TrimSpace(s) == "" {
		return Absent
	}
	return s
}
