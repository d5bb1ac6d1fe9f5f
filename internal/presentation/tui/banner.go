package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{"   __                                                 ", "#818cf8"},
	{"  / _| ___  _ __ _ __ _____      _____  __ ___   _____ ", "#a78bfa"},
	{" | |_ / _ \\| '__| '_ ` _ \\ \\ /\\ / / _ \\/ _` \\ \\ / / _ \\", "#c084fc"},
	{" |  _| (_) | |  | | | | | \\ V  V /  __/ (_| |\\ V /  __/", "#e879f9"},
	{" |_|  \\___/|_|  |_| |_| |_|\\_/\\_/ \\___|\\__,_| \\_/ \\___|", "#f472b6"},
}

// PrintBanner writes the formweave banner to w, colored when the terminal supports it.
func PrintBanner(w io.Writer) {
	out := termenv.NewOutput(w)
	fmt.Fprintln(w)
	for _, line := range bannerLines {
		fmt.Fprintln(w, out.String(line.text).Foreground(out.Color(line.color)))
	}
	fmt.Fprintln(w)
}
