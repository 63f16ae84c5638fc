package version

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Version holds the current build version. Override with
// -ldflags "-X github.com/voxpipe/internal/version.Version=v1.2.3".
var Version = "dev"

const (
	separator = "────────────────────────────────────────────────────────────"
	banner    = `
                          _
 __   _____  ___ __ _ __ (_)_ __   ___
 \ \ / / _ \ \/ / '_ \| '_ \| | '_ \ / _ \
  \ V / (_) >  <| |_) | | |_) | | |_) |  __/
   \_/ \___/_/\_\ .__/|_| .__/|_| .__/ \___|
                |_|     |_|     |_|
`
)

// Banner returns the ASCII-art project banner.
func Banner() string {
	return strings.Trim(banner, "\n")
}

// PrintBanner writes the decorated banner and version info to w (stdout if nil).
func PrintBanner(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, separator)
	fmt.Fprintln(w, Banner())
	fmt.Fprintf(w, "\n  voxpipe %s\n", Version)
	fmt.Fprintf(w, "  Voice Extraction Pipeline Service\n")
	fmt.Fprintln(w, separator)
	fmt.Fprintln(w)
}
