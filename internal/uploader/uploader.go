// Package uploader writes extracted attachments to the blob store and
// tracks which messages earned a place in the archive batch.
package uploader

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/wmuktapp/Titan-EmailAttachmentDownloader/internal/scanner"
	"github.com/wmuktapp/Titan-EmailAttachmentDownloader/pkg/storage"
)

// ArchiveBatch is the set of message UIDs whose attachments uploaded
// successfully. A UID is added only after its upload returned without
// error.
type ArchiveBatch struct {
	uids map[uint32]struct{}
}

// NewArchiveBatch returns an empty batch.
func NewArchiveBatch() *ArchiveBatch {
	return &ArchiveBatch{uids: map[uint32]struct{}{}}
}

// Add records a UID. Adding a UID more than once is a no-op.
func (b *ArchiveBatch) Add(uid uint32) {
	b.uids[uid] = struct{}{}
}

// Len returns the number of distinct UIDs in the batch.
func (b *ArchiveBatch) Len() int {
	return len(b.uids)
}

// UIDs returns the batch contents in ascending order.
func (b *ArchiveBatch) UIDs() []uint32 {
	uids := make([]uint32, 0, len(b.uids))
	for uid := range b.uids {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids
}

// Sequencer uploads attachments one at a time under the
// "{dataset}_{loadDate}_{fileName}" key template.
type Sequencer struct {
	Store    storage.BlobWriter
	Dataset  string
	LoadDate time.Time
	Logger   *slog.Logger
}

// Upload derives the storage key for the match's attachment, writes the
// payload, and on success records the owning UID in the batch. A failed
// upload leaves the batch untouched and propagates the error.
func (s *Sequencer) Upload(ctx context.Context, match *scanner.Match, batch *ArchiveBatch) error {
	if s.Store == nil {
		return errors.New("requires blob writer")
	}
	if s.Logger == nil {
		return errors.New("requires slogger")
	}

	key := s.blobKey(match.Attachment.Filename)
	s.Logger.InfoContext(ctx, "Uploading attachment...",
		slog.String("key", key),
		slog.Any("uid", match.UID),
		slog.Int("size", len(match.Attachment.Payload)))

	if err := s.Store.WriteBytes(ctx, key, match.Attachment.Payload); err != nil {
		return err
	}

	batch.Add(match.UID)
	return nil
}

func (s *Sequencer) blobKey(fileName string) string {
	return fmt.Sprintf("%s_%s_%s", s.Dataset, s.LoadDate.Format("2006-01-02"), fileName)
}
