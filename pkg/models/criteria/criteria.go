// Package criteria holds the compiled matching rules a run selects
// attachments with.
package criteria

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// MatchCriteria bundles the three anchored patterns applied to a message's
// subject, sender and attachment filename. All patterns are compiled once,
// before any network I/O happens.
type MatchCriteria struct {
	subject  *regexp.Regexp
	sender   *regexp.Regexp
	filename *regexp.Regexp
}

// New compiles the subject, sender and filename patterns. The filename
// pattern is a template: the literal tokens YYYY, MM and DD are replaced
// with the load date's year, month and day before compiling. Invalid
// patterns fail here, never mid-scan.
func New(subjectPattern, senderPattern, filenamePattern string, loadDate time.Time) (*MatchCriteria, error) {
	subject, err := compileAnchored(subjectPattern)
	if err != nil {
		return nil, errors.Wrap(err, "invalid email subject pattern")
	}

	sender, err := compileAnchored(senderPattern)
	if err != nil {
		return nil, errors.Wrap(err, "invalid email sender pattern")
	}

	filename, err := compileAnchored(ExpandDateTokens(filenamePattern, loadDate))
	if err != nil {
		return nil, errors.Wrap(err, "invalid filename pattern")
	}

	return &MatchCriteria{
		subject:  subject,
		sender:   sender,
		filename: filename,
	}, nil
}

// MatchesMessage reports whether both the subject and the sender begin with
// a match of their respective patterns. The match is anchored at the start
// of the header value only; trailing content is allowed.
func (mc *MatchCriteria) MatchesMessage(subject, sender string) bool {
	return mc.subject.MatchString(subject) && mc.sender.MatchString(sender)
}

// MatchesFilename applies the expanded filename pattern to the attachment's
// declared filename, anchored at the start of the string.
func (mc *MatchCriteria) MatchesFilename(name string) bool {
	return mc.filename.MatchString(name)
}

// ExpandDateTokens substitutes the YYYY, MM and DD tokens in a filename
// pattern template with the date's zero-padded components. Substituting a
// second time with the same date is a no-op since the replacements are
// purely numeric.
func ExpandDateTokens(pattern string, date time.Time) string {
	return strings.NewReplacer(
		"YYYY", date.Format("2006"),
		"MM", date.Format("01"),
		"DD", date.Format("02"),
	).Replace(pattern)
}

// compileAnchored compiles the pattern with prefix-match semantics: the
// match must start at the beginning of the string but need not consume all
// of it.
func compileAnchored(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(fmt.Sprintf("^(?:%s)", pattern))
}
