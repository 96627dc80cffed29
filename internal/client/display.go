//go:generate go run go.uber.org/mock/mockgen -source=display.go -destination=mocks/mock_display.go -package=mocks
package client

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gookit/color"

	"github.com/Tyrowin/packetchat/internal/protocol"
)

// Display renders lines for the user. It is called from the receive goroutine
// and the input goroutine, so implementations must be safe for concurrent use.
type Display interface {
	// ShowMessage renders the payload of a packet received from the server.
	ShowMessage(kind protocol.Kind, text string)
	// ShowNotice renders a local message that never touched the network.
	ShowNotice(text string)
}

// LineReader blocks until the user typed a line. An error (EOF, interrupt)
// ends the input loop.
type LineReader interface {
	ReadLine(prompt string) (string, error)
}

// Console is the terminal implementation of Display and LineReader.
type Console struct {
	mu      sync.Mutex
	in      *bufio.Reader
	out     io.Writer
	colours bool
	prompt  string
}

// NewConsole reads typed lines from in and writes to out, colouring incoming
// lines by packet kind when colours is true.
func NewConsole(in io.Reader, out io.Writer, colours bool) *Console {
	return &Console{in: bufio.NewReader(in), out: out, colours: colours}
}

func (c *Console) ShowMessage(kind protocol.Kind, text string) {
	c.print(c.style(kind), text)
}

func (c *Console) ShowNotice(text string) {
	c.print(color.Yellow, text)
}

// print writes text above the pending prompt and redraws the prompt.
func (c *Console) print(style color.Color, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, line := range strings.Split(text, "\n") {
		if c.colours {
			line = style.Sprint(line)
		}
		_, _ = fmt.Fprintf(c.out, "\r%s\n", line)
	}
	if c.prompt != "" {
		_, _ = fmt.Fprint(c.out, c.prompt)
	}
}

func (c *Console) style(kind protocol.Kind) color.Color {
	switch kind {
	case protocol.KindHello:
		return color.Green
	case protocol.KindEmote:
		return color.Cyan
	case protocol.KindDM:
		return color.Magenta
	case protocol.KindError, protocol.KindAbort:
		return color.Red
	default:
		return color.FgDefault
	}
}

func (c *Console) ReadLine(prompt string) (string, error) {
	c.mu.Lock()
	c.prompt = prompt
	_, _ = fmt.Fprint(c.out, prompt)
	c.mu.Unlock()

	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
