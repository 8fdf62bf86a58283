package services

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Field limits for comment submissions, counted in Unicode code points.
const (
	AuthorMinRunes  = 2
	AuthorMaxRunes  = 100
	ContentMinRunes = 3
	ContentMaxRunes = 2000
	PostIDMaxRunes  = 255
	EmailMaxRunes   = 320
)

// emailRE accepts local@domain.tld where no part contains '@' or any
// Unicode space (separators, vertical tab and the BOM included).
var emailRE = regexp.MustCompile(`^[^\s\x{000B}\p{Z}\x{FEFF}@]+@[^\s\x{000B}\p{Z}\x{FEFF}@]+\.[^\s\x{000B}\p{Z}\x{FEFF}@]+$`)

// SubmitInput carries the raw fields of a comment submission plus the
// request metadata captured by the handler.
type SubmitInput struct {
	PostID    string
	Author    string
	Email     string
	Content   string
	ParentID  string
	Honeypot  string
	IPAddress string
	UserAgent string
}

// CommentDraft is a validated, normalized submission ready to persist.
type CommentDraft struct {
	PostID   string
	Author   string
	Email    string
	Content  string
	ParentID *string
}

// Validator checks comment submissions. Rules run in a fixed order and the
// first failure is returned.
type Validator struct{}

// Validate normalizes in (NFC, trimmed) and applies, in order:
// required fields, author length, content length, email shape, then the
// postId storage limit.
func (Validator) Validate(in SubmitInput) (CommentDraft, error) {
	d := CommentDraft{
		PostID:  clean(in.PostID),
		Author:  clean(in.Author),
		Email:   clean(in.Email),
		Content: clean(in.Content),
	}
	if p := clean(in.ParentID); p != "" {
		d.ParentID = &p
	}

	switch {
	case d.PostID == "":
		return d, invalid("postId", "postId is required")
	case d.Author == "":
		return d, invalid("author", "author is required")
	case d.Email == "":
		return d, invalid("email", "email is required")
	case d.Content == "":
		return d, invalid("content", "content is required")
	}
	if n := utf8.RuneCountInString(d.Author); n < AuthorMinRunes || n > AuthorMaxRunes {
		return d, invalid("author", "name must be between 2 and 100 characters")
	}
	if n := utf8.RuneCountInString(d.Content); n < ContentMinRunes || n > ContentMaxRunes {
		return d, invalid("content", "comment must be between 3 and 2000 characters")
	}
	if utf8.RuneCountInString(d.Email) > EmailMaxRunes || !emailRE.MatchString(d.Email) {
		return d, invalid("email", "invalid email address")
	}
	if utf8.RuneCountInString(d.PostID) > PostIDMaxRunes {
		return d, invalid("postId", "postId is too long")
	}
	return d, nil
}

func clean(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
