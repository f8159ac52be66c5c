// Package console is a transport.Transport that writes messages to a
// terminal. It backs the one-shot `ghost ask` command.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ghostbot/internal/transport"

	"golang.org/x/net/html"
)

// Console prints sends and edits. Interim edits (messages carrying a
// keyboard) are suppressed unless Verbose is set.
type Console struct {
	mu       sync.Mutex
	out      io.Writer
	photoDir string
	verbose  bool
	nextID   int
	current  map[int]string
}

var _ transport.Transport = (*Console)(nil)

// Options configures a Console.
type Options struct {
	Out io.Writer
	// PhotoDir receives generated images. Defaults to the working directory.
	PhotoDir string
	Verbose  bool
}

// New returns a Console.
func New(opts Options) *Console {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	dir := opts.PhotoDir
	if dir == "" {
		dir = "."
	}
	return &Console{out: out, photoDir: dir, verbose: opts.Verbose, current: make(map[int]string)}
}

// Send implements transport.Transport.
func (c *Console) Send(_ context.Context, chatID int64, msg transport.Message) (transport.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	text := Render(msg)
	c.current[c.nextID] = text
	c.print(c.nextID, text, msg.Keyboard != nil)
	return transport.MessageRef{ChatID: chatID, MessageID: c.nextID}, nil
}

// Edit implements transport.Transport.
func (c *Console) Edit(_ context.Context, ref transport.MessageRef, msg transport.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.current[ref.MessageID]; !ok {
		return transport.ErrNotFound
	}
	text := Render(msg)
	if c.current[ref.MessageID] == text {
		return nil
	}
	c.current[ref.MessageID] = text
	c.print(ref.MessageID, text, msg.Keyboard != nil)
	return nil
}

// Delete implements transport.Transport.
func (c *Console) Delete(_ context.Context, ref transport.MessageRef) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.current[ref.MessageID]; !ok {
		return transport.ErrNotFound
	}
	delete(c.current, ref.MessageID)
	return nil
}

// SendPhoto writes the image to the photo directory and prints its path.
func (c *Console) SendPhoto(_ context.Context, chatID int64, photo []byte, caption transport.Message) (transport.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	path := filepath.Join(c.photoDir, fmt.Sprintf("ghost-%d.jpg", c.nextID))
	if err := os.WriteFile(path, photo, 0o644); err != nil {
		return transport.MessageRef{}, fmt.Errorf("console: write photo: %w", err)
	}
	text := fmt.Sprintf("[image %s] %s", path, Render(caption))
	c.current[c.nextID] = text
	c.print(c.nextID, text, false)
	return transport.MessageRef{ChatID: chatID, MessageID: c.nextID}, nil
}

// SetCommands implements transport.Transport.
func (c *Console) SetCommands(context.Context, []transport.Command) error { return nil }

// AnswerCallback implements transport.Transport.
func (c *Console) AnswerCallback(context.Context, string, string) error { return nil }

func (c *Console) print(id int, text string, interim bool) {
	if interim && !c.verbose {
		return
	}
	fmt.Fprintf(c.out, "#%d> %s\n", id, text)
}

// Render flattens a message to plain text. HTML messages have their tags
// removed and entities decoded.
func Render(msg transport.Message) string {
	if msg.ParseMode != transport.HTML {
		return msg.Text
	}
	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(msg.Text))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return sb.String()
		case html.TextToken:
			sb.Write(z.Text())
		}
	}
}
