package archiver_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/emersion/go-imap"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/wmuktapp/Titan-EmailAttachmentDownloader/internal/archiver"
	"github.com/wmuktapp/Titan-EmailAttachmentDownloader/internal/uploader"
	"github.com/wmuktapp/Titan-EmailAttachmentDownloader/pkg/mock"
)

type seqSetMatcher struct {
	want string
}

func (m seqSetMatcher) Matches(x interface{}) bool {
	seqset, ok := x.(*imap.SeqSet)
	return ok && seqset.String() == m.want
}

func (m seqSetMatcher) String() string {
	return fmt.Sprintf("is the sequence set %q", m.want)
}

func uidSet(uid uint32) gomock.Matcher {
	return seqSetMatcher{want: fmt.Sprintf("%d", uid)}
}

func batchOf(uids ...uint32) *uploader.ArchiveBatch {
	batch := uploader.NewArchiveBatch()
	for _, uid := range uids {
		batch.Add(uid)
	}
	return batch
}

func TestArchiveCopiesMarksAndExpunges(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockClient := mock.NewMockClient(ctrl)
	deleted := imap.FormatFlagsOp(imap.AddFlags, true)

	gomock.InOrder(
		mockClient.EXPECT().Select("INBOX", false).Return(&imap.MailboxStatus{}, nil),
		mockClient.EXPECT().UidCopy(uidSet(4), "Processed").Return(nil),
		mockClient.EXPECT().UidStore(uidSet(4), deleted, []interface{}{imap.DeletedFlag}, nil).Return(nil),
		mockClient.EXPECT().UidCopy(uidSet(11), "Processed").Return(nil),
		mockClient.EXPECT().UidStore(uidSet(11), deleted, []interface{}{imap.DeletedFlag}, nil).Return(nil),
		mockClient.EXPECT().Expunge(nil).Return(nil),
	)

	a := &archiver.Archiver{
		Client: mockClient,
		Folder: "Processed",
		Logger: mock.SetupLogger(t),
	}

	assert.NoError(t, a.Archive(context.Background(), batchOf(11, 4)))
}

func TestArchiveEmptyBatchOnlySelectsAndExpunges(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockClient := mock.NewMockClient(ctrl)
	gomock.InOrder(
		mockClient.EXPECT().Select("INBOX", false).Return(&imap.MailboxStatus{}, nil),
		mockClient.EXPECT().Expunge(nil).Return(nil),
	)

	a := &archiver.Archiver{
		Client: mockClient,
		Folder: "Processed",
		Logger: mock.SetupLogger(t),
	}

	assert.NoError(t, a.Archive(context.Background(), uploader.NewArchiveBatch()))
}

func TestArchiveCopyFailureAbortsLoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockClient := mock.NewMockClient(ctrl)
	gomock.InOrder(
		mockClient.EXPECT().Select("INBOX", false).Return(&imap.MailboxStatus{}, nil),
		mockClient.EXPECT().
			UidCopy(uidSet(4), "Processed").
			Return(errors.New("NO copy failed: quota exceeded")),
	)

	a := &archiver.Archiver{
		Client: mockClient,
		Folder: "Processed",
		Logger: mock.SetupLogger(t),
	}

	// UID 11 is never copied, nothing is marked deleted, no expunge runs.
	err := a.Archive(context.Background(), batchOf(4, 11))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestArchiveStoreFailureAbortsLoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockClient := mock.NewMockClient(ctrl)
	deleted := imap.FormatFlagsOp(imap.AddFlags, true)
	gomock.InOrder(
		mockClient.EXPECT().Select("INBOX", false).Return(&imap.MailboxStatus{}, nil),
		mockClient.EXPECT().UidCopy(uidSet(4), "Processed").Return(nil),
		mockClient.EXPECT().
			UidStore(uidSet(4), deleted, []interface{}{imap.DeletedFlag}, nil).
			Return(errors.New("NO store failed")),
	)

	a := &archiver.Archiver{
		Client: mockClient,
		Folder: "Processed",
		Logger: mock.SetupLogger(t),
	}

	err := a.Archive(context.Background(), batchOf(4, 11))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store failed")
}

func TestArchiveRequiresDependencies(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockClient := mock.NewMockClient(ctrl)

	tests := []struct {
		name     string
		archiver *archiver.Archiver
	}{
		{name: "missing client", archiver: &archiver.Archiver{Folder: "Processed", Logger: mock.SetupLogger(t)}},
		{name: "missing folder", archiver: &archiver.Archiver{Client: mockClient, Logger: mock.SetupLogger(t)}},
		{name: "missing logger", archiver: &archiver.Archiver{Client: mockClient, Folder: "Processed"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.archiver.Archive(context.Background(), uploader.NewArchiveBatch())
			assert.Error(t, err)
		})
	}
}
