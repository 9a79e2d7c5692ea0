package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/relaymq/relay-go/pkg/log"
	"github.com/relaymq/relay-go/pkg/session"
	"github.com/relaymq/relay-go/pkg/transport"
	"github.com/relaymq/relay-go/pkg/wire"
)

// handshakeReadBuffer is the minimum buffer for reading Info.
const handshakeReadBuffer = session.MinReadBuffer

type handshakeResult struct {
	transport transport.Transport
	info      wire.Frame
	mode      session.Mode
	decoder   *wire.Decoder
	pending   []wire.Frame
}

// handshake runs the Info/Config exchange on a fresh connection.
type handshake struct {
	builder *Builder
	plain   *transport.PlainStream
	connID  string
	logger  *slog.Logger
	plog    log.Logger
}

func (h *handshake) run(ctx context.Context) (*handshakeResult, error) {
	conn := h.plain.Conn()
	deadline := time.Now().Add(h.builder.connectTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)
	defer conn.SetDeadline(time.Time{})

	h.plog.Log(log.StateEventFor(h.connID, log.StateEntityConnection, "DISCONNECTED", "HANDSHAKE", conn.RemoteAddr().String()))

	dec := wire.NewDecoder(0)
	info, pending, err := h.readInfo(dec)
	if err != nil {
		return nil, err
	}

	if info.Version > wire.ProtocolVersion {
		h.logger.Warn("broker speaks a newer protocol version",
			"broker_version", info.Version, "client_version", wire.ProtocolVersion)
	}

	mode, err := SelectMode(info.Capabilities, h.builder.caps)
	if err != nil {
		return nil, err
	}

	upgrade := h.builder.tlsDomain != "" && info.Capabilities.Has(wire.CapTLS)
	if h.builder.tlsDomain != "" && !upgrade {
		h.logger.Warn("broker does not offer TLS, continuing in plaintext", "tls_domain", h.builder.tlsDomain)
	}

	caps := mode.Capability()
	if upgrade {
		caps |= wire.CapTLS
	}

	fw := transport.NewFrameWriter(h.plain)
	if h.builder.protocolLogger != nil {
		fw.SetLogger(h.builder.protocolLogger, h.connID)
	}
	if err := fw.WriteFrame(wire.NewConfig(caps)); err != nil {
		return nil, newError(KindIO, "write config", err)
	}

	res := &handshakeResult{
		transport: h.plain,
		info:      *info,
		mode:      mode,
		decoder:   dec,
		pending:   pending,
	}

	if upgrade {
		t, err := h.upgrade(ctx)
		if err != nil {
			return nil, err
		}
		res.transport = t
		// Anything read before the upgrade was plaintext.
		res.pending = nil
		dec.Reset()
	}

	h.plog.Log(log.StateEventFor(h.connID, log.StateEntityConnection, "HANDSHAKE", "CONNECTED", mode.String()))
	return res, nil
}

// readInfo reads until at least one frame is decoded. Frames that arrived
// in the same reads after Info are returned as pending.
func (h *handshake) readInfo(dec *wire.Decoder) (*wire.Frame, []wire.Frame, error) {
	buf := make([]byte, handshakeReadBuffer)
	for {
		n, err := h.plain.Read(buf)
		if n > 0 {
			frames, derr := dec.Feed(buf[:n])
			if derr != nil {
				return nil, nil, newError(KindDecode, "read info", derr)
			}
			if len(frames) > 0 {
				info := frames[0]
				h.plog.Log(log.FrameEventFor(h.connID, log.DirectionIn, &info))
				if info.Kind != wire.KindInfo {
					return nil, nil, newError(KindHandshake, "read info",
						fmt.Errorf("%w: got %s", ErrHandshakeParse, info.Kind))
				}
				return &info, frames[1:], nil
			}
		}
		switch {
		case err == nil && n == 0:
			return nil, nil, newError(KindHandshake, "read info", ErrConnectClose)
		case err == nil:
		case transport.IsClosed(err):
			return nil, nil, newError(KindHandshake, "read info", fmt.Errorf("%w: %w", ErrConnectClose, err))
		default:
			return nil, nil, newError(KindIO, "read info", err)
		}
	}
}

func (h *handshake) upgrade(ctx context.Context) (*transport.TLSStream, error) {
	cfg := h.builder.tlsConfig
	cfg.ServerName = h.builder.tlsDomain

	tlsConfig, err := transport.NewClientTLSConfig(&cfg)
	if err != nil {
		return nil, newError(KindTLS, "configure", err)
	}
	t, err := transport.UpgradeTLS(ctx, h.plain, tlsConfig)
	if err != nil {
		return nil, newError(KindTLS, "upgrade", err)
	}

	state := t.ConnectionState()
	h.logger.Debug("tls established",
		"version", tls.VersionName(state.Version),
		"alpn", state.NegotiatedProtocol)
	return t, nil
}
