// Package io provides the file backend. Messages are appended to a
// newline-delimited JSON file; subscribers tail the file from the start and
// receive the lines written for their topic.
package io

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/flowbus/internal/runtime/jsoncodec"
	"github.com/drblury/flowbus/transport"
)

// TransportName is the name used to register this backend.
const TransportName = "io"

const (
	DefaultFilePath     = "messages.log"
	DefaultPollInterval = 50 * time.Millisecond
)

var errClosed = errors.New("io: transport is closed")

func init() {
	transport.Register(TransportName, Build, transport.IOCapabilities)
}

// Build creates a publisher and subscriber sharing one file.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	path := cfg.IO.File
	if path == "" {
		path = DefaultFilePath
	}
	poll := cfg.IO.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return transport.Transport{
		Publisher:  NewPublisher(path),
		Subscriber: NewSubscriber(path, poll, logger),
	}, nil
}

type storedMessage struct {
	UUID     string            `json:"uuid"`
	Topic    string            `json:"topic"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Payload  []byte            `json:"payload"`
}

// Publisher appends messages to the file.
type Publisher struct {
	path   string
	mu     sync.Mutex
	closed bool
}

func NewPublisher(path string) *Publisher {
	return &Publisher{path: path}
}

func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errClosed
	}

	var buf bytes.Buffer
	for _, msg := range messages {
		if err := jsoncodec.Encode(&buf, storedMessage{
			UUID:     msg.UUID,
			Topic:    topic,
			Metadata: msg.Metadata,
			Payload:  msg.Payload,
		}); err != nil {
			return fmt.Errorf("io: encode message %s: %w", msg.UUID, err)
		}
	}

	f, err := os.OpenFile(p.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("io: open %s: %w", p.path, err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("io: write %s: %w", p.path, err)
	}
	return f.Close()
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Subscriber tails the file. A nacked message is redelivered before the
// next line is read.
type Subscriber struct {
	path   string
	poll   time.Duration
	logger watermill.LoggerAdapter

	mu      sync.Mutex
	closing chan struct{}
	closed  bool
	wg      sync.WaitGroup
}

func NewSubscriber(path string, poll time.Duration, logger watermill.LoggerAdapter) *Subscriber {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Subscriber{path: path, poll: poll, logger: logger, closing: make(chan struct{})}
}

func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}

	f, err := os.OpenFile(s.path, os.O_RDONLY|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("io: open %s: %w", s.path, err)
	}

	out := make(chan *message.Message)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(out)
		defer f.Close()
		s.tail(ctx, f, topic, out)
	}()
	return out, nil
}

func (s *Subscriber) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.closing)
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func (s *Subscriber) tail(ctx context.Context, f *os.File, topic string, out chan<- *message.Message) {
	reader := bufio.NewReader(f)
	var partial []byte
	for {
		chunk, err := reader.ReadBytes('\n')
		partial = append(partial, chunk...)
		if errors.Is(err, io.EOF) {
			if !s.wait(ctx) {
				return
			}
			continue
		}
		if err != nil {
			s.logger.Error("Failed to read bridge file", err, watermill.LogFields{"file": s.path})
			return
		}

		line := partial
		partial = nil
		var stored storedMessage
		if err := jsoncodec.Unmarshal(line, &stored); err != nil {
			s.logger.Error("Skipping undecodable line", err, watermill.LogFields{"file": s.path})
			continue
		}
		if stored.Topic != topic {
			continue
		}
		if !s.deliver(ctx, stored, out) {
			return
		}
	}
}

// deliver blocks until the message is acked, redelivering it on nack.
func (s *Subscriber) deliver(ctx context.Context, stored storedMessage, out chan<- *message.Message) bool {
	for {
		msg := message.NewMessage(stored.UUID, stored.Payload)
		for k, v := range stored.Metadata {
			msg.Metadata.Set(k, v)
		}
		msg.SetContext(ctx)

		select {
		case out <- msg:
		case <-ctx.Done():
			return false
		case <-s.closing:
			return false
		}

		select {
		case <-msg.Acked():
			return true
		case <-msg.Nacked():
			s.logger.Debug("Message nacked, redelivering", watermill.LogFields{"uuid": msg.UUID})
		case <-ctx.Done():
			return false
		case <-s.closing:
			return false
		}
	}
}

func (s *Subscriber) wait(ctx context.Context) bool {
	timer := time.NewTimer(s.poll)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-s.closing:
		return false
	}
}
