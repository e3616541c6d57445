// Package archiver relocates processed messages into the archive folder.
package archiver

import (
	"context"
	"log/slog"

	"github.com/emersion/go-imap"
	"github.com/pkg/errors"

	"github.com/wmuktapp/Titan-EmailAttachmentDownloader/internal/uploader"
	"github.com/wmuktapp/Titan-EmailAttachmentDownloader/pkg/base"
)

// Archiver moves a batch of messages to the archive folder: per-UID copy
// and mark-deleted, then a single expunge. The first failing copy or store
// aborts the loop; nothing already copied is rolled back.
type Archiver struct {
	Client base.Client
	Folder string
	Logger *slog.Logger
}

// Archive relocates the batch. The working folder is re-selected
// read-write first, since the scan left the session in read-only mode. An
// empty batch still performs the select and the expunge, but issues no
// copy or store calls.
func (a *Archiver) Archive(ctx context.Context, batch *uploader.ArchiveBatch) error {
	if a.Client == nil {
		return errors.New("requires client")
	}
	if a.Folder == "" {
		return errors.New("requires archive folder")
	}
	if a.Logger == nil {
		return errors.New("requires slogger")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Out of read-only mode for the moving.
	if _, err := a.Client.Select(base.WorkingFolder, false); err != nil {
		return errors.Wrapf(err, "selecting %s writable", base.WorkingFolder)
	}

	deleted := imap.FormatFlagsOp(imap.AddFlags, true)
	for _, uid := range batch.UIDs() {
		seqset := new(imap.SeqSet)
		seqset.AddNum(uid)

		if err := a.Client.UidCopy(seqset, a.Folder); err != nil {
			return errors.Wrapf(err, "copying message %d to %q", uid, a.Folder)
		}
		if err := a.Client.UidStore(seqset, deleted, []interface{}{imap.DeletedFlag}, nil); err != nil {
			return errors.Wrapf(err, "marking message %d deleted", uid)
		}
		a.Logger.InfoContext(ctx, "Message archived",
			slog.Any("uid", uid),
			slog.String("folder", a.Folder))
	}

	if err := a.Client.Expunge(nil); err != nil {
		return errors.Wrap(err, "expunging deleted messages")
	}
	return nil
}
