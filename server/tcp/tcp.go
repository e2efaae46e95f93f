// Package tcp implements tagcache's line protocol front-end (spec §6.1,
// C6): one goroutine per connection, tab-delimited requests, newline-
// terminated responses, strict request/response ordering. Grounded on
// original_source/src/main.rs's handle_tcp_client, translated from Tokio's
// async BufReader/Writer to blocking net.Conn + bufio, the idiom the teacher
// repo's own net-facing code (cmd/bench) uses for straight-line I/O.
package tcp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/IvanBrykalov/tagcache/cache"
	"go.uber.org/zap"
)

// Server is the TCP line-protocol listener.
type Server struct {
	cache *cache.Cache
	log   *zap.Logger
	ln    net.Listener
}

// New builds a Server over c; ListenAndServe binds the listening address.
func New(c *cache.Cache, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{cache: c, log: log}
}

// ListenAndServe binds addr and serves connections until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.log.Info("tcp listener started", zap.String("addr", addr))

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Warn("tcp accept error", zap.Error(err))
				return err
			}
		}
		go s.handle(conn)
	}
}

// handle services one connection until EOF or a write error, processing
// requests strictly in order (spec §6.1: "responses are sent in the order
// requests are received").
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	for {
		line, err := reader.ReadString('\n')
		if line == "" && err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			resp := s.dispatch(line)
			if _, werr := writer.WriteString(resp); werr != nil {
				return
			}
			if _, werr := writer.WriteString("\n"); werr != nil {
				return
			}
			if werr := writer.Flush(); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// dispatch parses one line and returns the response text (without the
// trailing newline), matching original_source's splitn(5, '\t') parsing and
// exact response vocabulary.
func (s *Server) dispatch(line string) string {
	parts := strings.SplitN(line, "\t", 5)
	cmd := strings.ToUpper(parts[0])
	arg := func(i int) (string, bool) {
		if i < len(parts) {
			return parts[i], true
		}
		return "", false
	}

	switch cmd {
	case "PUT":
		k, ok := arg(1)
		if !ok || k == "" {
			return "ERR missing_key"
		}
		ttlPart, _ := arg(2)
		tagsPart, _ := arg(3)
		value, _ := arg(4)

		var ttl time.Duration
		if ttlPart != "" && ttlPart != "-" {
			if ms, err := strconv.ParseInt(ttlPart, 10, 64); err == nil {
				ttl = time.Duration(ms) * time.Millisecond
			}
		}
		var tags []cache.Tag
		if tagsPart != "" && tagsPart != "-" {
			for _, t := range strings.Split(tagsPart, ",") {
				if t != "" {
					tags = append(tags, cache.Tag(t))
				}
			}
		}
		if err := s.cache.Put(cache.Key(k), []byte(value), tags, ttl); err != nil {
			return "ERR " + err.Error()
		}
		return "OK"

	case "GET":
		k, ok := arg(1)
		if !ok || k == "" {
			return "ERR missing_key"
		}
		v, found := s.cache.Get(cache.Key(k))
		if !found {
			return "NF"
		}
		return "VALUE\t" + string(v)

	case "DEL":
		k, ok := arg(1)
		if !ok || k == "" {
			return "ERR missing_key"
		}
		if s.cache.InvalidateKey(cache.Key(k)) {
			return "DEL ok"
		}
		return "DEL nf"

	case "INV_TAG":
		t, ok := arg(1)
		if !ok || t == "" {
			return "ERR missing_tag"
		}
		n := s.cache.InvalidateTag(cache.Tag(t))
		return fmt.Sprintf("INV_TAG\t%d", n)

	case "KEYS_BY_TAG", "KEYS":
		t, ok := arg(1)
		if !ok || t == "" {
			return "ERR missing_tag"
		}
		keys := s.cache.KeysByTag(cache.Tag(t), 0)
		strs := make([]string, len(keys))
		for i, k := range keys {
			strs[i] = string(k)
		}
		return "KEYS\t" + strings.Join(strs, ",")

	case "FLUSH":
		n := s.cache.Flush()
		return fmt.Sprintf("FLUSH\t%d", n)

	case "STATS":
		st := s.cache.Snapshot()
		return fmt.Sprintf("STATS\t%d\t%d\t%d\t%d\t%.6f",
			st.Hits, st.Misses, st.Puts, st.Invalidations, st.HitRatio())

	default:
		return "ERR unknown_command"
	}
}
