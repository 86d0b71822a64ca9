package screen

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/kellegous/poop"

	"github.com/kellegous/sensorscan"
)

// PromptRequester asks for a permission on a line-oriented terminal before
// the program takes over the screen.
type PromptRequester struct {
	In  io.Reader
	Out io.Writer
}

var _ sensorscan.PermissionRequester = (*PromptRequester)(nil)

func (r *PromptRequester) Request(
	ctx context.Context,
	perm sensorscan.Permission,
	rationale sensorscan.Rationale,
) (sensorscan.PermissionResult, error) {
	fmt.Fprintln(r.Out, titleStyle.Render(rationale.Title))
	fmt.Fprintln(r.Out, rationale.Message)
	fmt.Fprintf(r.Out, "Allow %s? [y]es / [n]o / [d]on't ask again: ", perm)

	lines := make(chan string, 1)
	errs := make(chan error, 1)
	go func() {
		line, err := bufio.NewReader(r.In).ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			errs <- err
			return
		}
		lines <- line
	}()

	select {
	case <-ctx.Done():
		return sensorscan.PermissionDenied, poop.Chain(ctx.Err())
	case err := <-errs:
		return sensorscan.PermissionDenied, poop.Chain(err)
	case line := <-lines:
		return parseAnswer(line), nil
	}
}

func parseAnswer(line string) sensorscan.PermissionResult {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", strings.ToLower(sensorscan.DefaultRationale.ButtonPositive):
		return sensorscan.PermissionGranted
	case "d", "never", "never_ask_again":
		return sensorscan.PermissionNeverAskAgain
	}
	return sensorscan.PermissionDenied
}
