package services

import (
	"errors"
	"strings"
	"testing"
)

func validInput() SubmitInput {
	return SubmitInput{PostID: "p1", Author: "Jo", Email: "jo@x.com", Content: "Nice post!"}
}

func TestValidator_AcceptsAndNormalizes(t *testing.T) {
	in := validInput()
	in.Author = "  Jo  "
	in.Content = "  Nice post!\n"
	in.ParentID = "  "
	d, err := Validator{}.Validate(in)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if d.Author != "Jo" || d.Content != "Nice post!" || d.ParentID != nil {
		t.Fatalf("unexpected draft: %+v", d)
	}

	in.ParentID = "abc"
	d, _ = Validator{}.Validate(in)
	if d.ParentID == nil || *d.ParentID != "abc" {
		t.Fatalf("parent not carried: %+v", d)
	}
}

func TestValidator_RulesInOrder(t *testing.T) {
	cases := []struct {
		name  string
		mut   func(*SubmitInput)
		field string
	}{
		{"missing post", func(in *SubmitInput) { in.PostID = "" }, "postId"},
		{"missing author", func(in *SubmitInput) { in.Author = "   " }, "author"},
		{"missing email", func(in *SubmitInput) { in.Email = "" }, "email"},
		{"missing content", func(in *SubmitInput) { in.Content = "" }, "content"},
		// required-field check runs before length checks
		{"missing email and short author", func(in *SubmitInput) { in.Email = ""; in.Author = "J" }, "email"},
		{"author too short", func(in *SubmitInput) { in.Author = "J" }, "author"},
		{"author too long", func(in *SubmitInput) { in.Author = strings.Repeat("a", 101) }, "author"},
		{"content too short", func(in *SubmitInput) { in.Content = "hi" }, "content"},
		{"content too long", func(in *SubmitInput) { in.Content = strings.Repeat("a", 2001) }, "content"},
		// length checks run before the email shape
		{"short content and bad email", func(in *SubmitInput) { in.Content = "hi"; in.Email = "nope" }, "content"},
		{"email no at", func(in *SubmitInput) { in.Email = "jo.x.com" }, "email"},
		{"email no dot", func(in *SubmitInput) { in.Email = "jo@x" }, "email"},
		{"email whitespace", func(in *SubmitInput) { in.Email = "j o@x.com" }, "email"},
		{"email double at", func(in *SubmitInput) { in.Email = "jo@@x.com" }, "email"},
		{"email no-break space", func(in *SubmitInput) { in.Email = "jo\u00a0x@x.com" }, "email"},
		{"email ideographic space", func(in *SubmitInput) { in.Email = "jo@x\u3000y.com" }, "email"},
		{"email line separator", func(in *SubmitInput) { in.Email = "jo@x.c\u2028om" }, "email"},
		{"email byte order mark", func(in *SubmitInput) { in.Email = "jo\ufeff@x.com" }, "email"},
		{"post too long", func(in *SubmitInput) { in.PostID = strings.Repeat("p", 256) }, "postId"},
		// the postId limit is the last rule
		{"long post and short author", func(in *SubmitInput) { in.PostID = strings.Repeat("p", 256); in.Author = "J" }, "author"},
		{"long post and bad email", func(in *SubmitInput) { in.PostID = strings.Repeat("p", 256); in.Email = "nope" }, "email"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mut(&in)
			_, err := Validator{}.Validate(in)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tc.field {
				t.Fatalf("field=%v want %q (err=%v)", ve, tc.field, err)
			}
		})
	}
}

func TestValidator_BoundariesCountRunes(t *testing.T) {
	in := validInput()
	in.Author = strings.Repeat("é", 100) // 100 runes, 200 bytes
	in.Content = strings.Repeat("ü", 2000)
	if _, err := (Validator{}).Validate(in); err != nil {
		t.Fatalf("upper bounds must be inclusive and rune based: %v", err)
	}
	in.Author = "Jo"
	in.Content = "abc"
	if _, err := (Validator{}).Validate(in); err != nil {
		t.Fatalf("lower bounds must be inclusive: %v", err)
	}
}

func TestValidator_NFCNormalization(t *testing.T) {
	in := validInput()
	in.Author = "e\u0301" // decomposed é: 2 code points before NFC, 1 after
	_, err := Validator{}.Validate(in)
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "author" {
		t.Fatalf("composed single rune author must be too short, got %v", err)
	}
}

func TestValidationError_Message(t *testing.T) {
	err := invalid("email", "invalid email address")
	if err.Error() != "email: invalid email address" {
		t.Fatalf("Error()=%q", err.Error())
	}
}
