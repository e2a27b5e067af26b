package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []string{
	`   ___`,
	`  / __|__ _ _ _ __ ____ _ ___`,
	` | (__/ _' | ' \ V / _' (_-<`,
	`  \___\__,_|_||_\_/\__,_/__/`,
}

var bannerColors = []string{"#818cf8", "#a78bfa", "#c084fc", "#e879f9"}

// PrintBanner writes the startup banner to w, colored for the
// terminal's detected profile.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	fmt.Fprintln(w)
	for i, line := range bannerLines {
		fmt.Fprintln(w, termenv.String(line).Foreground(p.Color(bannerColors[i])))
	}
	fmt.Fprintln(w)
}
