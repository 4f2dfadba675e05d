// Package quictransport adapts a github.com/quic-go/quic-go Connection
// to pkg/roq's StreamTransport and DatagramTransport collaborator
// interfaces, and drives a pkg/demux.Demuxer from a Connection's
// incoming streams and datagrams. It is the Go equivalent of the
// original_source quicsink/quicsrc GStreamer elements the bbc/gst-roq
// rtpquicmux/rtpquicdemux elements sit on top of.
package quictransport

import (
	"context"
	"errors"
	"io"

	"github.com/go-logr/logr"
	"github.com/quic-go/quic-go"

	"github.com/bbc/gst-roq/pkg/demux"
	"github.com/bbc/gst-roq/pkg/roq"
)

// cancelCode is the application error code readStream passes to
// CancelRead when the demuxer rejects an inbound stream; the peer sees
// it as STOP_SENDING on that stream.
const cancelCode quic.StreamErrorCode = 0

// readChunkSize bounds a single Read off an inbound QUIC stream before
// handing the chunk to the demuxer; it intentionally does not try to
// read whole frames at once; pkg/demux reassembles across chunks of
// any size.
const readChunkSize = 4096

// Conn wraps one quic.Connection, implementing roq.StreamTransport and
// roq.DatagramTransport for the sending side, and driving a
// pkg/demux.Demuxer for the receiving side via Serve.
type Conn struct {
	conn   quic.Connection
	logger logr.Logger
}

// New wraps an established QUIC connection.
func New(conn quic.Connection, logger logr.Logger) *Conn {
	return &Conn{conn: conn, logger: logger}
}

// OpenStream implements roq.StreamTransport by opening a new outgoing
// unidirectional QUIC stream, per spec.md §6's open_stream.
func (c *Conn) OpenStream() (roq.StreamHandle, error) {
	s, err := c.conn.OpenUniStream()
	if err != nil {
		return nil, err
	}
	return &sendStream{stream: s}, nil
}

// SendDatagram implements roq.DatagramTransport.
func (c *Conn) SendDatagram(b []byte) (roq.EmitResult, error) {
	if err := c.conn.SendDatagram(b); err != nil {
		return roq.EmitOK, err
	}
	return roq.EmitOK, nil
}

// sendStream adapts a quic.SendStream to roq.StreamHandle.
type sendStream struct {
	stream quic.SendStream
}

func (s *sendStream) ID() int64 { return int64(s.stream.StreamID()) }

// Write implements roq.StreamHandle, translating a peer's
// STOP_SENDING (surfaced by quic-go as a *quic.StreamError write
// error) into roq.EmitStreamClosed per spec.md §4.3's "emit results
// handling". Any *quic.StreamError is reported this way.
func (s *sendStream) Write(b []byte) (roq.EmitResult, error) {
	_, err := s.stream.Write(b)
	if err == nil {
		return roq.EmitOK, nil
	}
	var streamErr *quic.StreamError
	if errors.As(err, &streamErr) {
		return roq.EmitStreamClosed, nil
	}
	return roq.EmitOK, err
}

func (s *sendStream) Close() error {
	return s.stream.Close()
}

// Serve drives demuxer from conn's incoming unidirectional streams and
// datagrams until ctx is cancelled or the connection closes. It blocks;
// callers run it in its own goroutine per connection.
func Serve(ctx context.Context, conn quic.Connection, demuxer *demux.Demuxer, logger logr.Logger) error {
	errCh := make(chan error, 2)
	go func() { errCh <- serveStreams(ctx, conn, demuxer, logger) }()
	go func() { errCh <- serveDatagrams(ctx, conn, demuxer, logger) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func serveStreams(ctx context.Context, conn quic.Connection, demuxer *demux.Demuxer, logger logr.Logger) error {
	for {
		stream, err := conn.AcceptUniStream(ctx)
		if err != nil {
			return err
		}
		go readStream(stream, demuxer, logger)
	}
}

func readStream(stream quic.ReceiveStream, demuxer *demux.Demuxer, logger logr.Logger) {
	streamID := int64(stream.StreamID())
	buf := make([]byte, readChunkSize)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			if cerr := demuxer.OnStreamChunk(streamID, buf[:n], false); cerr != nil {
				logger.Error(cerr, "stream chunk rejected", "stream", streamID)
				stream.CancelRead(cancelCode)
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				_ = demuxer.OnStreamChunk(streamID, nil, true)
			}
			return
		}
	}
}

func serveDatagrams(ctx context.Context, conn quic.Connection, demuxer *demux.Demuxer, logger logr.Logger) error {
	for {
		b, err := conn.ReceiveDatagram(ctx)
		if err != nil {
			return err
		}
		if derr := demuxer.OnDatagram(b); derr != nil {
			logger.Error(derr, "datagram rejected")
		}
	}
}
