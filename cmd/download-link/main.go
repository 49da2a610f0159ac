// Command download-link prints a signed download link for a CDN hosted file.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"downloads-gateway/internal/link"
)

type cli struct {
	URL      string `kong:"required,help='Target URL of the file to download.'"`
	Host     string `kong:"required,help='Scheme and host the gateway is reached at, e.g. https://elifesciences.org.'"`
	Filename string `kong:"required,help='Filename offered to the client.'"`
	Secret   string `kong:"required,env='SECRET',help='URL signing secret.'"`
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("download-link"),
		kong.Description("Generate a signed link for the downloads gateway."),
	)

	l, err := link.Build(c.Secret, c.Host, c.URL, c.Filename)
	ctx.FatalIfErrorf(err)

	fmt.Fprintln(os.Stdout, l)
}
