package main

import (
	"github.com/wmuktapp/Titan-EmailAttachmentDownloader/internal/cli"
)

func main() {
	cli.Execute()
}
