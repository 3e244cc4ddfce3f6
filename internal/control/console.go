package control

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"go-event-stream/internal/infrastructure/logger"
)

// Console reads one command per line from an operator input such as stdin.
type Console struct {
	dispatcher *Dispatcher
	in         io.Reader
	out        io.Writer
	logger     logger.Logger
}

func NewConsole(d *Dispatcher, in io.Reader, out io.Writer, log logger.Logger) *Console {
	return &Console{
		dispatcher: d,
		in:         in,
		out:        out,
		logger:     log.WithField("component", "console"),
	}
}

// Run processes lines until the input ends or ctx is cancelled. Blocking
// reads are not interruptible, so on cancellation the reader goroutine is
// left to finish on its own.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				c.logger.Warnf("console input closed: %v", err)
				return err
			}
			c.logger.Debug("console input reached EOF")
			return nil
		case line := <-lines:
			c.handle(line)
		}
	}
}

func (c *Console) handle(line string) {
	if line == "" {
		return
	}

	cmd, err := c.dispatcher.Execute(line)
	if err != nil {
		c.logger.Warnf("rejected console command: %v", err)
		fmt.Fprintln(c.out, err.Error())
		return
	}

	switch cmd {
	case CommandStart:
		c.logger.Info("event sending started from console")
	case CommandStop:
		c.logger.Info("event sending stopped from console")
	case CommandShutdown:
		c.logger.Info("shutdown requested from console, sending farewell events")
	case CommandStatus:
		s := c.dispatcher.State().Snapshot()
		fmt.Fprintf(c.out, "sending=%v terminating=%v\n", s.Sending, s.Terminating)
	}
}
