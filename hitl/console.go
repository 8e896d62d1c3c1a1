package hitl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

// Console answers exchange requests from a line-oriented terminal.
//
// For each published request it prints the payload, the numbered options and
// the prompt, reads one line and submits it under the request key. When the
// request lists options, typing an option number submits that option's text.
type Console struct {
	in     io.Reader
	out    io.Writer
	logger *zap.Logger

	payloadStyle lipgloss.Style
	optionStyle  lipgloss.Style
	promptStyle  lipgloss.Style
	noticeStyle  lipgloss.Style
}

// NewConsole creates a console reading answers from in and writing prompts to out.
func NewConsole(in io.Reader, out io.Writer) *Console {
	r := lipgloss.NewRenderer(out)
	return &Console{
		in:           in,
		out:          out,
		logger:       zap.NewNop(),
		payloadStyle: r.NewStyle().Faint(true),
		optionStyle:  r.NewStyle().Foreground(lipgloss.Color("6")),
		promptStyle:  r.NewStyle().Bold(true),
		noticeStyle:  r.NewStyle().Foreground(lipgloss.Color("3")),
	}
}

// WithLogger sets the console logger and returns the console.
func (c *Console) WithLogger(logger *zap.Logger) *Console {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// Serve answers requests until the request stream closes, the input ends or
// ctx is done. A closed stream returns nil; exhausted input returns io.EOF.
func (c *Console) Serve(ctx context.Context, ex *Exchange) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go c.readLines(ctx, lines, readErr)

	for {
		var req Request
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case r, ok := <-ex.Requests():
			if !ok {
				return nil
			}
			req = r
		}

		c.render(req)

		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ex.Done():
			return nil
		case err := <-readErr:
			return err
		case line = <-lines:
		}

		value := resolveOption(req.Options, line)
		if err := ex.Submit(req.Key, value); err != nil {
			// The request may have timed out while the human was typing.
			c.logger.Warn("answer not delivered", zap.String("key", req.Key), zap.Error(err))
			fmt.Fprintln(c.out, c.noticeStyle.Render("(answer discarded: "+err.Error()+")"))
		}
	}
}

func (c *Console) render(req Request) {
	if req.Payload != "" {
		fmt.Fprintln(c.out, c.payloadStyle.Render(req.Payload))
	}
	for i, opt := range req.Options {
		fmt.Fprintln(c.out, c.optionStyle.Render(fmt.Sprintf("  %d) %s", i+1, opt)))
	}
	fmt.Fprint(c.out, c.promptStyle.Render(req.Prompt))
}

func (c *Console) readLines(ctx context.Context, lines chan<- string, readErr chan<- error) {
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		select {
		case lines <- strings.TrimRight(scanner.Text(), "\r"):
		case <-ctx.Done():
			return
		}
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	readErr <- err
}

// resolveOption maps "2" to the second option; anything else passes through.
func resolveOption(options []string, line string) string {
	if len(options) == 0 {
		return line
	}
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || n < 1 || n > len(options) {
		return line
	}
	return options[n-1]
}

// ServeFunc answers every published request with answer(req) until the
// request stream closes or ctx is done. Answers that can no longer be
// delivered are skipped.
func ServeFunc(ctx context.Context, ex *Exchange, answer func(Request) string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req, ok := <-ex.Requests():
			if !ok {
				return nil
			}
			err := ex.Submit(req.Key, answer(req))
			if err != nil && !errors.Is(err, ErrNoPendingRequest) {
				if errors.Is(err, ErrClosed) {
					return nil
				}
				return err
			}
		}
	}
}
