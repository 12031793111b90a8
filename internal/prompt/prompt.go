// Package prompt asks the user questions on a terminal, one at a time, on behalf of any number of goroutines.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/alanbriolat/video-fetcher/generic"
	"github.com/alanbriolat/video-fetcher/internal/lpc"
	"github.com/alanbriolat/video-fetcher/internal/sync_"
)

var ErrClosed = errors.New("prompter closed")

type question = *lpc.Command[string, string]

// A Prompter owns a terminal's input and output. Questions queue up and are asked in turn, so a pending question
// never blocks anything but its asker, and an asker whose context ends stops waiting straight away.
type Prompter struct {
	out       io.Writer
	questions chan question
	lines     chan generic.Result[string]
	ctx       context.Context
	cancel    context.CancelFunc
	stopped   sync_.Event
}

func New(in io.Reader, out io.Writer) *Prompter {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Prompter{
		out:       out,
		questions: make(chan question),
		lines:     make(chan generic.Result[string]),
		ctx:       ctx,
		cancel:    cancel,
	}
	go p.readLines(in)
	go p.run()
	return p
}

// readLines feeds lines from in to whichever question is being asked. It can't be interrupted, so it may outlive the
// Prompter until in is closed.
func (p *Prompter) readLines(in io.Reader) {
	reader := bufio.NewReader(in)
	for {
		line, err := reader.ReadString('\n')
		if line != "" || err == nil {
			if !p.deliver(generic.Ok(strings.TrimRight(line, "\r\n"))) {
				return
			}
		}
		if err != nil {
			p.deliver(generic.Err[string](err))
			return
		}
	}
}

func (p *Prompter) deliver(line generic.Result[string]) bool {
	select {
	case p.lines <- line:
		return true
	case <-p.ctx.Done():
		return false
	}
}

func (p *Prompter) run() {
	defer p.stopped.Set()
	eof := false
	for {
		select {
		case <-p.ctx.Done():
			return
		case q := <-p.questions:
			if eof {
				_ = q.RespondError(io.EOF)
				continue
			}
			_, _ = fmt.Fprint(p.out, q.Arg())
			select {
			case result := <-p.lines:
				if result.IsErr() {
					eof = true
					_, _ = fmt.Fprintln(p.out)
					_ = q.RespondError(result.Error)
				} else {
					_ = q.Respond(result.Value)
				}
			case <-q.Done():
				// Asker gave up
				_, _ = fmt.Fprintln(p.out)
			case <-p.ctx.Done():
				q.Close()
				return
			}
		}
	}
}

// Ask writes question and returns the next line of input, without its line ending.
func (p *Prompter) Ask(ctx context.Context, question string) (string, error) {
	q := (*lpc.Command[string, string]).New(nil, question)
	select {
	case p.questions <- q:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-p.stopped.Wait():
		return "", ErrClosed
	}
	select {
	case <-q.Done():
		return q.Wait()
	case <-ctx.Done():
		q.Close()
		return "", ctx.Err()
	}
}

// ConfirmOverwrite asks whether path may be replaced; anything but yes is no. Its signature matches
// video_fetcher.ConfirmFunc.
func (p *Prompter) ConfirmOverwrite(ctx context.Context, path string) (bool, error) {
	answer, err := p.Ask(ctx, fmt.Sprintf("File %s already exists. Overwrite? [y/N] ", path))
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Close stops the Prompter. Questions still waiting get ErrClosed or lpc.ErrNoResponse.
func (p *Prompter) Close() {
	p.cancel()
	<-p.stopped.Wait()
}
