package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"
	"unicode/utf8"

	"github.com/louisbranch/relaychat/internal/services/relay/room"
	"github.com/louisbranch/relaychat/internal/services/relay/wire"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// serveData reads datagrams and hands each one to a worker. The loop blocks
// while MaxInflightDatagrams workers are busy, leaving excess traffic queued
// in the socket buffer.
func (s *Server) serveData(ctx context.Context) error {
	buf := make([]byte, wire.MaxDatagramSize+1)
	var backoff time.Duration
	for {
		n, from, err := s.dataConn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			backoff = nextBackoff(backoff)
			log.Printf("relay: data read failed, retrying in %s: %v", backoff, err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0

		if n > wire.MaxDatagramSize {
			log.Printf("relay: dropped datagram from=%s: larger than %d bytes", from, wire.MaxDatagramSize)
			s.telemetry.dropped(ctx, dropOversize)
			continue
		}
		if err := s.datagramSlots.Acquire(ctx, 1); err != nil {
			return nil
		}
		packet := make([]byte, n)
		copy(packet, buf[:n])

		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			defer s.datagramSlots.Release(1)
			s.routeDatagram(ctx, packet, from)
		}()
	}
}

// routeDatagram applies one datagram: a leave signal ends a membership (or
// the whole room when sent by the host); anything else is broadcast.
func (s *Server) routeDatagram(ctx context.Context, packet []byte, from *net.UDPAddr) {
	ctx, span := s.telemetry.tracer.Start(ctx, "relay.datagram", trace.WithAttributes(
		attribute.String("net.peer.addr", from.String()),
		attribute.Int("relay.datagram.bytes", len(packet)),
	))
	defer span.End()
	defer func() {
		if recovered := recover(); recovered != nil {
			log.Printf("relay: datagram panic from=%s: %v", from, recovered)
			s.telemetry.dropped(ctx, dropPanic)
		}
	}()

	datagram, err := wire.DecodeDatagram(packet)
	if err != nil {
		s.drop(ctx, span, dropMalformed, from, "", err)
		return
	}
	roomName, err := wire.NormalizeName("room name", datagram.RoomName)
	if err != nil {
		s.drop(ctx, span, dropMalformed, from, datagram.RoomName, err)
		return
	}
	span.SetAttributes(attribute.String("relay.room", roomName))

	target, err := s.registry.Get(roomName)
	if err != nil {
		s.drop(ctx, span, dropUnknownRoom, from, roomName, err)
		return
	}

	if datagram.IsLeave() {
		s.leave(ctx, span, target, datagram.Token, from)
		return
	}

	if !utf8.Valid(datagram.Message) {
		s.drop(ctx, span, dropMalformed, from, roomName, fmt.Errorf("message is not UTF-8"))
		return
	}
	text := string(datagram.Message)
	member, ok := target.Member(datagram.Token)
	if !ok {
		s.drop(ctx, span, dropUnknownMember, from, roomName, fmt.Errorf("token is not a member of %s", roomName))
		return
	}
	// Receivers read at most MaxDatagramSize bytes, so a longer line would arrive cut.
	line := s.notices.ChatLine(member.UserName, text)
	if len(line) > wire.MaxDatagramSize {
		s.drop(ctx, span, dropOversize, from, roomName, fmt.Errorf("chat line is %d bytes, limit %d", len(line), wire.MaxDatagramSize))
		return
	}
	sender, recipients, err := target.Say(datagram.Token, text, time.Now().UTC())
	if err != nil {
		s.drop(ctx, span, dropUnknownMember, from, roomName, err)
		return
	}
	s.telemetry.datagramsRouted.Add(ctx, 1)
	s.broadcast(recipients, line)
	log.Printf("relay: message room=%q user=%q bytes=%d recipients=%d", roomName, sender.UserName, len(datagram.Message), len(recipients))
}

func (s *Server) leave(ctx context.Context, span trace.Span, target *room.Room, token string, from *net.UDPAddr) {
	departure, err := target.Leave(token)
	if err != nil {
		s.drop(ctx, span, dropUnknownMember, from, target.Name(), err)
		return
	}
	s.telemetry.datagramsRouted.Add(ctx, 1)

	if departure.Host {
		s.registry.Remove(target.Name(), target)
		s.telemetry.roomsClosed.Add(ctx, 1)
		span.SetAttributes(attribute.Bool("relay.teardown", true))
		s.broadcast(departure.Recipients, s.notices.HostLeft(departure.Sender.UserName, target.Name()))
		log.Printf("relay: host left, room closed room=%q user=%q members=%d", target.Name(), departure.Sender.UserName, len(departure.Recipients))
		return
	}
	s.broadcast(departure.Recipients, s.notices.MemberLeft(departure.Sender.UserName, target.Name()))
	log.Printf("relay: member left room=%q user=%q", target.Name(), departure.Sender.UserName)
}

// broadcast sends text to each recipient without acknowledgment or retry.
func (s *Server) broadcast(recipients []room.Member, text string) {
	payload := []byte(text)
	for _, recipient := range recipients {
		if _, err := s.dataConn.WriteToUDP(payload, recipient.Addr); err != nil {
			log.Printf("relay: deliver to user=%q addr=%s: %v", recipient.UserName, recipient.Addr, err)
		}
	}
}

func (s *Server) drop(ctx context.Context, span trace.Span, reason string, from *net.UDPAddr, roomName string, err error) {
	span.SetAttributes(attribute.String("relay.drop_reason", reason))
	s.telemetry.dropped(ctx, reason)
	log.Printf("relay: dropped datagram reason=%s from=%s room=%q: %v", reason, from, roomName, err)
}
