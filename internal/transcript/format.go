// Package transcript renders fetched messages as plain display text.
package transcript

import (
	"fmt"
	"strings"
	"time"

	"cwlogd/internal/chatwork"
)

// Line renders one message as "[YYYY/MM/DD HH:MM] sender: body" in the
// given location.
func Line(m chatwork.Message, loc *time.Location) string {
	ts := time.Unix(m.SendTime, 0).In(loc)
	return fmt.Sprintf("[%s] %s: %s", ts.Format("2006/01/02 15:04"), m.Sender, m.Body)
}

// Render joins the formatted lines for a slice of messages with newlines.
// Callers are expected to pass messages already ordered by send time.
func Render(msgs []chatwork.Message, loc *time.Location) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, Line(m, loc))
	}
	return strings.Join(lines, "\n")
}
