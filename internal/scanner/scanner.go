// Package scanner walks a mailbox newest-first and yields the attachments
// that satisfy the configured match criteria, one pair at a time.
package scanner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/pkg/errors"

	"github.com/wmuktapp/Titan-EmailAttachmentDownloader/pkg/base"
	"github.com/wmuktapp/Titan-EmailAttachmentDownloader/pkg/models/criteria"
)

// ErrNoMatches is returned when the scan finishes without a single
// attachment satisfying all predicates.
var ErrNoMatches = errors.New("0 attachments were found matching the criteria")

// Attachment is an extracted attachment: the declared filename from the
// part's Content-Description header plus the decoded payload.
type Attachment struct {
	Filename string
	Payload  []byte
}

// Match pairs an attachment with the UID of the message that carried it.
type Match struct {
	UID        uint32
	Attachment Attachment
}

// Scanner produces a finite, non-restartable sequence of matches via Next.
// The first call to Next selects folders and runs the UID search; later
// calls fetch and filter one message at a time, so at most one message body
// is held in memory.
type Scanner struct {
	Client   base.Client
	Criteria *criteria.MatchCriteria
	Logger   *slog.Logger

	// LoadDate is the run's reference date. When MatchDateReceived is set,
	// candidates are restricted to messages received on LoadDate minus one
	// day.
	LoadDate          time.Time
	MatchDateReceived bool

	// FetchOne stops the scan after the first message that yields at least
	// one matching attachment. All of that message's matching attachments
	// are still returned.
	FetchOne bool

	// ArchiveFolder, when non-empty, is probed read-only before any message
	// is touched so a missing folder fails the run up front.
	ArchiveFolder string

	started bool
	done    bool
	yielded bool
	uids    []uint32
	pos     int
	pending []Match
}

// Next returns the next qualifying (UID, attachment) pair. It returns
// (nil, nil) once the sequence is exhausted, or ErrNoMatches if the whole
// scan produced nothing.
func (s *Scanner) Next(ctx context.Context) (*Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !s.started {
		if err := s.start(ctx); err != nil {
			return nil, err
		}
		s.started = true
	}

	for {
		if len(s.pending) > 0 {
			match := s.pending[0]
			s.pending = s.pending[1:]
			s.yielded = true
			return &match, nil
		}

		if s.done || s.pos >= len(s.uids) {
			s.done = true
			if !s.yielded {
				return nil, ErrNoMatches
			}
			return nil, nil
		}

		uid := s.uids[s.pos]
		s.pos++

		matches, err := s.extract(ctx, uid)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			continue
		}

		s.pending = matches
		if s.FetchOne {
			// Cutoff: finish this message's attachments, then stop.
			s.done = true
		}
	}
}

func (s *Scanner) start(ctx context.Context) error {
	if s.Client == nil {
		return errors.New("requires client")
	}
	if s.Criteria == nil {
		return errors.New("requires match criteria")
	}
	if s.Logger == nil {
		return errors.New("requires slogger")
	}

	if s.ArchiveFolder != "" {
		if _, err := s.Client.Select(s.ArchiveFolder, true); err != nil {
			return errors.Wrapf(err, "archive folder %q is not selectable", s.ArchiveFolder)
		}
	}

	if _, err := s.Client.Select(base.WorkingFolder, true); err != nil {
		return errors.Wrapf(err, "selecting %s", base.WorkingFolder)
	}

	uids, err := s.searchCandidates()
	if err != nil {
		return errors.Wrap(err, "searching for candidate messages")
	}

	// Most recent first.
	for i, j := 0, len(uids)-1; i < j; i, j = i+1, j-1 {
		uids[i], uids[j] = uids[j], uids[i]
	}
	s.uids = uids

	s.Logger.InfoContext(ctx, "Candidate messages selected",
		slog.Int("count", len(uids)),
		slog.Bool("dateRestricted", s.MatchDateReceived))
	return nil
}

func (s *Scanner) searchCandidates() ([]uint32, error) {
	crit := imap.NewSearchCriteria()
	if s.MatchDateReceived {
		day := s.LoadDate.AddDate(0, 0, -1)
		day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
		crit.Since = day
		crit.Before = day.AddDate(0, 0, 1)
	} else {
		all := new(imap.SeqSet)
		all.AddRange(1, 0)
		crit.Uid = all
	}
	return s.Client.UidSearch(crit)
}

// extract fetches one message and returns the matches it contributes. A
// message whose subject or sender does not qualify contributes nothing.
func (s *Scanner) extract(ctx context.Context, uid uint32) ([]Match, error) {
	raw, err := s.fetchRaw(uid)
	if err != nil {
		return nil, err
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, errors.Wrapf(err, "parsing message %d", uid)
	}

	subject := headerText(mr.Header.Header, "Subject")
	sender := headerText(mr.Header.Header, "From")
	if !s.Criteria.MatchesMessage(subject, sender) {
		return nil, nil
	}

	s.Logger.InfoContext(ctx, "Message matched",
		slog.Any("uid", uid),
		slog.String("subject", subject),
		slog.String("sender", sender))

	var matches []Match
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if message.IsUnknownCharset(err) {
			// Not fatal; the payload is still readable.
			s.Logger.WarnContext(ctx, fmt.Sprintf("Unknown encoding: %v", err))
		} else if err != nil {
			return nil, errors.Wrapf(err, "reading parts of message %d", uid)
		}

		header, ok := part.Header.(*mail.AttachmentHeader)
		if !ok {
			continue
		}

		name := headerText(header.Header, "Content-Description")
		if !s.Criteria.MatchesFilename(name) {
			continue
		}

		payload, err := io.ReadAll(part.Body)
		if err != nil {
			return nil, errors.Wrapf(err, "reading attachment %q of message %d", name, uid)
		}
		matches = append(matches, Match{UID: uid, Attachment: Attachment{Filename: name, Payload: payload}})
	}

	return matches, nil
}

// fetchRaw downloads the full message content for one UID.
func (s *Scanner) fetchRaw(uid uint32) ([]byte, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.Client.UidFetch(seqset, items, messages)
	}()

	var raw []byte
	var readErr error
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, readErr = io.ReadAll(body)
	}

	if err := <-done; err != nil {
		return nil, errors.Wrapf(err, "fetching message %d", uid)
	}
	if readErr != nil {
		return nil, errors.Wrapf(readErr, "reading message %d", uid)
	}
	if raw == nil {
		return nil, errors.Errorf("message %d has no content", uid)
	}
	return raw, nil
}

func headerText(header message.Header, key string) string {
	value, err := header.Text(key)
	if err != nil {
		return header.Get(key)
	}
	return value
}
