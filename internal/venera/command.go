package venera

import (
	"fmt"
	"strings"
)

// HeadlessFlag is always passed to the tool before the command.
const HeadlessFlag = "--headless"

// Command is a tool command, Args are passed to the process as they are and
// Text is the human readable form used on logs and events.
type Command struct {
	Args []string
	Text string
}

func newCommand(args ...string) Command {
	return Command{Args: args, Text: strings.Join(args, " ")}
}

// WebDAVDown downloads the remote state.
func WebDAVDown() Command { return newCommand("webdav", "down") }

// WebDAVUp uploads the local state to the remote.
func WebDAVUp() Command { return newCommand("webdav", "up") }

// UpdateScriptAll runs the update script for all the sources.
func UpdateScriptAll() Command { return newCommand("updatescript", "all") }

// UpdateSubscribe fetches the subscription summary.
func UpdateSubscribe() Command { return newCommand("updatesubscribe") }

// UpdateComic fetches a single comic by its ID and source type.
func UpdateComic(id, comicType string) Command {
	return Command{
		Args: []string{"updatesubscribe", "--update-comic-by-id-type", id, comicType},
		Text: fmt.Sprintf("updatesubscribe --update-comic-by-id-type %q %q", id, comicType),
	}
}
