// File: internal/mcp/stdio.go
package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
)

const maxMessageSize = 4 << 20

// ServeStdio reads newline-delimited JSON-RPC messages from in and writes each
// reply on its own line to out. It returns nil when in reaches EOF. Nothing but
// protocol messages may be written to out, so logs must go elsewhere.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("MCP server listening on stdio.")

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				readErr <- ctx.Err()
				return
			}
		}
		readErr <- scanner.Err()
	}()

	w := bufio.NewWriter(out)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := <-readErr; err != nil {
					return fmt.Errorf("failed to read request: %w", err)
				}
				s.logger.Info("Input closed; MCP server stopping.")
				return nil
			}
			reply := s.Handle(ctx, line)
			if reply == nil {
				continue
			}
			if _, err := w.Write(append(reply, '\n')); err != nil {
				return fmt.Errorf("failed to write response: %w", err)
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("failed to write response: %w", err)
			}
		}
	}
}

// logWriteFailure is used by transports that cannot return write errors.
func (s *Server) logWriteFailure(transport string, err error) {
	s.logger.Warn("Failed to write response", zap.String("transport", transport), zap.Error(err))
}
