// Package flowmanager drives one complete run: connect, authenticate,
// scan, upload, archive, disconnect.
package flowmanager

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/pkg/errors"

	"github.com/wmuktapp/Titan-EmailAttachmentDownloader/internal/archiver"
	"github.com/wmuktapp/Titan-EmailAttachmentDownloader/internal/scanner"
	"github.com/wmuktapp/Titan-EmailAttachmentDownloader/internal/uploader"
	"github.com/wmuktapp/Titan-EmailAttachmentDownloader/pkg/base"
	"github.com/wmuktapp/Titan-EmailAttachmentDownloader/pkg/models/criteria"
	"github.com/wmuktapp/Titan-EmailAttachmentDownloader/pkg/storage"
	"github.com/wmuktapp/Titan-EmailAttachmentDownloader/pkg/utils"
)

// RunOptions carries the per-run settings that shape the scan and the
// archival phase.
type RunOptions struct {
	FetchOne          bool
	MatchDateReceived bool
	ArchiveFolder     string
	LoadDate          time.Time
	Dataset           string
}

type FlowManager interface {
	Run() error
}

type FlowManagerImpl struct {
	client    base.Client
	dialTLS   func(address string, tlsConfig *tls.Config) (base.Client, error)
	username  string
	password  string
	address   string
	logger    *slog.Logger
	tlsConfig *tls.Config
	ctx       context.Context
	criteria  *criteria.MatchCriteria
	store     storage.BlobWriter
	options   RunOptions
}

type FlowManagerOption func(*FlowManagerImpl) error

func NewFlowManager(opts ...FlowManagerOption) (*FlowManagerImpl, error) {
	var fm FlowManagerImpl
	for _, opt := range opts {
		err := opt(&fm)
		if err != nil {
			return nil, err
		}
	}

	if fm.dialTLS == nil {
		fm.dialTLS = func(address string, tlsConfig *tls.Config) (base.Client, error) {
			c, err := imapclient.DialTLS(address, tlsConfig)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}

	if fm.username == "" {
		return nil, errors.New("requires username")
	}

	if fm.password == "" {
		return nil, errors.New("requires password")
	}

	if fm.client == nil && fm.address == "" {
		return nil, errors.New("requires client or address")
	}

	if fm.logger == nil {
		return nil, errors.New("requires slogger")
	}

	if fm.ctx == nil {
		return nil, errors.New("requires ctx")
	}

	if fm.criteria == nil {
		return nil, errors.New("requires match criteria")
	}

	if fm.store == nil {
		return nil, errors.New("requires blob writer")
	}

	return &fm, nil
}

func WithTLSConfig(addr string, tlsConfig *tls.Config) FlowManagerOption {
	return func(fm *FlowManagerImpl) error {
		fm.address = addr
		fm.tlsConfig = tlsConfig
		return nil
	}
}

func WithAuth(username string, password string) FlowManagerOption {
	return func(fm *FlowManagerImpl) error {
		fm.username = username
		fm.password = password
		return nil
	}
}

func WithClient(c base.Client) FlowManagerOption {
	return func(fm *FlowManagerImpl) error {
		fm.client = c
		return nil
	}
}

func WithDialTLS(d func(address string, tlsConfig *tls.Config) (base.Client, error)) FlowManagerOption {
	return func(fm *FlowManagerImpl) error {
		fm.dialTLS = d
		return nil
	}
}

func WithLogger(logger *slog.Logger) FlowManagerOption {
	return func(fm *FlowManagerImpl) error {
		fm.logger = logger
		return nil
	}
}

func WithCtx(ctx context.Context) FlowManagerOption {
	return func(fm *FlowManagerImpl) error {
		fm.ctx = ctx
		return nil
	}
}

func WithCriteria(mc *criteria.MatchCriteria) FlowManagerOption {
	return func(fm *FlowManagerImpl) error {
		fm.criteria = mc
		return nil
	}
}

func WithStore(store storage.BlobWriter) FlowManagerOption {
	return func(fm *FlowManagerImpl) error {
		fm.store = store
		return nil
	}
}

func WithRunOptions(options RunOptions) FlowManagerOption {
	return func(fm *FlowManagerImpl) error {
		fm.options = options
		return nil
	}
}

// Login authenticates the session, dialing first when no live connection
// exists yet.
func (fm *FlowManagerImpl) Login() (base.Client, error) {
	if fm.client == nil {
		c, err := fm.dialTLS(fm.address, fm.tlsConfig)
		if err != nil {
			fm.logger.ErrorContext(fm.ctx, fmt.Sprintf("Failed to create a client: %v", err), slog.Any("error", utils.WrapError(err)))
			return nil, err
		}
		fm.client = c
	}

	state := fm.client.State()
	switch state {
	case imap.NotAuthenticatedState:
		if err := fm.client.Login(fm.username, fm.password); err != nil {
			fm.logger.ErrorContext(fm.ctx, fmt.Sprintf("Failed to login: %v", err), slog.Any("error", utils.WrapError(err)))
			return fm.client, err
		}
		fm.logger.Info("Login success")
	case imap.AuthenticatedState:
		fm.logger.Info("Already authenticated")
	case imap.SelectedState:
		fm.logger.Info("Already selected mailbox")
	default: // imap.LogoutState and imap.ConnectedState
		c, err := fm.dialTLS(fm.address, fm.tlsConfig)
		if err != nil {
			fm.logger.ErrorContext(fm.ctx, fmt.Sprintf("Failed to create a client: %v", err), slog.Any("error", utils.WrapError(err)))
			return fm.client, err
		}
		fm.client = c

		if err := fm.client.Login(fm.username, fm.password); err != nil {
			fm.logger.ErrorContext(fm.ctx, fmt.Sprintf("Failed to login: %v", err), slog.Any("error", utils.WrapError(err)))
			return fm.client, err
		}
		fm.logger.Info("Login success")
	}

	return fm.client, nil
}

// LogoutFn returns the deferred session teardown.
func (fm *FlowManagerImpl) LogoutFn() func() {
	return func() {
		if fm.client == nil {
			return
		}
		if err := fm.client.Logout(); err != nil {
			fm.logger.ErrorContext(fm.ctx, fmt.Sprintf("Failed to logout: %v", err), slog.Any("error", utils.WrapError(err)))
		}
	}
}

// Run executes one complete flow. The session is released on every exit
// path; any failure at any stage surfaces here and is terminal.
func (fm *FlowManagerImpl) Run() error {
	defer fm.LogoutFn()()

	client, err := fm.Login()
	if err != nil {
		return err
	}

	scan := &scanner.Scanner{
		Client:            client,
		Criteria:          fm.criteria,
		Logger:            fm.logger,
		LoadDate:          fm.options.LoadDate,
		MatchDateReceived: fm.options.MatchDateReceived,
		FetchOne:          fm.options.FetchOne,
		ArchiveFolder:     fm.options.ArchiveFolder,
	}

	sequencer := &uploader.Sequencer{
		Store:    fm.store,
		Dataset:  fm.options.Dataset,
		LoadDate: fm.options.LoadDate,
		Logger:   fm.logger,
	}

	batch := uploader.NewArchiveBatch()
	for {
		match, err := scan.Next(fm.ctx)
		if err != nil {
			return err
		}
		if match == nil {
			break
		}
		if err := sequencer.Upload(fm.ctx, match, batch); err != nil {
			return err
		}
	}

	if fm.options.ArchiveFolder == "" {
		return nil
	}

	arch := &archiver.Archiver{
		Client: client,
		Folder: fm.options.ArchiveFolder,
		Logger: fm.logger,
	}
	if err := arch.Archive(fm.ctx, batch); err != nil {
		return err
	}

	fm.logger.InfoContext(fm.ctx, "Archival complete", slog.Int("messages", batch.Len()))
	return nil
}
