// Package cli wires the command-line surface to the flow manager.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/wmuktapp/Titan-EmailAttachmentDownloader/pkg/models/criteria"
	"github.com/wmuktapp/Titan-EmailAttachmentDownloader/pkg/models/flowmanager"
	"github.com/wmuktapp/Titan-EmailAttachmentDownloader/pkg/storage"
	"github.com/wmuktapp/Titan-EmailAttachmentDownloader/pkg/utils"
)

const (
	defaultEnvFile = ".env"
	envDataset     = "TITAN_DATASET"

	dateLayout = "2006-01-02"

	// ExitMessage is the short operator-facing failure signal; the detail
	// lives in the logs.
	ExitMessage = "ERROR ENCOUNTERED - CHECK LOGS"
)

// Seams for tests.
var (
	newStore = func() (storage.BlobWriter, error) {
		return storage.NewS3BlobWriterFromEnv()
	}
	newFlowManager = func(opts ...flowmanager.FlowManagerOption) (flowmanager.FlowManager, error) {
		return flowmanager.NewFlowManager(opts...)
	}
)

// NewApp builds the command-line application.
func NewApp() *cli.App {
	return &cli.App{
		Name:  "titandownloader",
		Usage: "Download matching email attachments to blob storage and archive the source messages",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "imap-ssl-hostname",
				Aliases:  []string{"H"},
				Usage:    "IMAP over SSL server to connect to (port 993 unless specified)",
				EnvVars:  []string{"TITAN_IMAP_HOSTNAME"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "username",
				Aliases:  []string{"u"},
				Usage:    "mailbox account username",
				EnvVars:  []string{"TITAN_IMAP_USERNAME"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "password",
				Aliases:  []string{"p"},
				Usage:    "mailbox account password",
				EnvVars:  []string{"TITAN_IMAP_PASSWORD"},
				Required: true,
			},
			&cli.BoolFlag{
				Name:     "fetch-one",
				Aliases:  []string{"f"},
				Usage:    "stop after the first message with a qualifying attachment",
				Required: true,
			},
			&cli.BoolFlag{
				Name:    "match-date-received",
				Aliases: []string{"m"},
				Usage:   "only consider messages received the day before the load date",
			},
			&cli.StringFlag{
				Name:    "email-subject",
				Aliases: []string{"e"},
				Usage:   "pattern the message subject must begin with",
				Value:   ".*",
			},
			&cli.StringFlag{
				Name:    "email-sender",
				Aliases: []string{"s"},
				Usage:   "pattern the message sender must begin with",
				Value:   ".*",
			},
			&cli.StringFlag{
				Name:    "filename-pattern",
				Aliases: []string{"n"},
				Usage:   "pattern the attachment filename must begin with; YYYY, MM and DD expand to the load date",
				Value:   ".*",
			},
			&cli.StringFlag{
				Name:    "archive-folder",
				Aliases: []string{"a"},
				Usage:   "folder matched messages are moved to after upload (supports Parent/Child paths)",
			},
			&cli.TimestampFlag{
				Name:    "load-date",
				Aliases: []string{"l"},
				Usage:   fmt.Sprintf("load date as %s (default: yesterday)", dateLayout),
				Layout:  dateLayout,
			},
		},
		Before: func(c *cli.Context) error {
			return loadEnvFile()
		},
		Action: run,
	}
}

// Execute runs the application against os.Args.
func Execute() {
	if err := NewApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := c.Context

	loadDate := yesterday()
	if ts := c.Timestamp("load-date"); ts != nil {
		loadDate = *ts
	}

	matchCriteria, err := criteria.New(
		c.String("email-subject"),
		c.String("email-sender"),
		c.String("filename-pattern"),
		loadDate,
	)
	if err != nil {
		return fail(c, logger, err)
	}

	dataset := strings.TrimSpace(os.Getenv(envDataset))
	if dataset == "" {
		return fail(c, logger, fmt.Errorf("missing required environment variable: %s", envDataset))
	}

	store, err := newStore()
	if err != nil {
		return fail(c, logger, err)
	}

	fm, err := newFlowManager(
		flowmanager.WithTLSConfig(serverAddress(c.String("imap-ssl-hostname")), nil),
		flowmanager.WithAuth(c.String("username"), c.String("password")),
		flowmanager.WithLogger(logger),
		flowmanager.WithCtx(ctx),
		flowmanager.WithCriteria(matchCriteria),
		flowmanager.WithStore(store),
		flowmanager.WithRunOptions(flowmanager.RunOptions{
			FetchOne:          c.Bool("fetch-one"),
			MatchDateReceived: c.Bool("match-date-received"),
			ArchiveFolder:     c.String("archive-folder"),
			LoadDate:          loadDate,
			Dataset:           dataset,
		}),
	)
	if err != nil {
		return fail(c, logger, err)
	}

	if err := fm.Run(); err != nil {
		return fail(c, logger, err)
	}
	return nil
}

// fail logs the full error and converts it into the fixed operator message
// with a non-zero exit status.
func fail(c *cli.Context, logger *slog.Logger, err error) error {
	logger.ErrorContext(c.Context, err.Error(), slog.Any("error", utils.WrapError(err)))
	return cli.Exit(ExitMessage, 1)
}

func serverAddress(hostname string) string {
	if strings.Contains(hostname, ":") {
		return hostname
	}
	return hostname + ":993"
}

func yesterday() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

func loadEnvFile() error {
	if _, err := os.Stat(defaultEnvFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(defaultEnvFile)
}
