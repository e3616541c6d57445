package base

import (
	"github.com/emersion/go-imap"
)

// WorkingFolder is the folder scanned for qualifying messages.
const WorkingFolder = "INBOX"

// Client is an interface to abstract the client.Client methods used.
// All message-level operations are UID based so that identifiers stay
// stable for the duration of the session.
type Client interface {
	Expunge(ch chan uint32) error
	Login(username string, password string) error
	Logout() error
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	State() imap.ConnState
	UidCopy(seqset *imap.SeqSet, dest string) error
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidSearch(criteria *imap.SearchCriteria) (uids []uint32, err error)
	UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error
}
