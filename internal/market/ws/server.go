package ws

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"quotehub.com/internal/market/subscription"
	"quotehub.com/internal/market/wsmetrics"
	"quotehub.com/pkg/xerr"
)

// Subscriber 订阅引擎，由 subscription.Engine 实现
type Subscriber interface {
	Subscribe(ctx context.Context, clientID string, p subscription.Payload) ([]string, error)
	Unsubscribe(ctx context.Context, clientID string, p subscription.Payload) ([]string, error)
	RemoveClient(clientID string)
}

const maxFlush = 256 // 单次最多写多少条，防止订阅频道极多时一次写爆

type Server struct {
	Hub      *Hub
	Subs     Subscriber
	Upgrader websocket.Upgrader

	PongWait   time.Duration
	PingPeriod time.Duration
	PingJitter time.Duration
	WriteWait  time.Duration
	ReadLimit  int64

	ctx context.Context
	log *zap.Logger
}

func NewServer(ctx context.Context, h *Hub, subs Subscriber, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		Hub:  h,
		Subs: subs,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true }, // 跨域交给 cors 中间件 / 网关
		},
		PongWait:   60 * time.Second,
		PingPeriod: 30 * time.Second,
		PingJitter: 3 * time.Second,
		WriteWait:  5 * time.Second,
		ReadLimit:  16 << 10,
		ctx:        ctx,
		log:        log,
	}
}

func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("ws upgrade", zap.Error(err))
		return
	}
	c := NewConn(uuid.NewString(), wsConn)
	wsmetrics.OnOpen()
	s.log.Debug("ws connected", zap.String("client_id", c.id), zap.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(s.ctx)
	go s.writePump(ctx, c)
	go func() {
		defer cancel()
		s.readPump(ctx, c)
	}()
}

func (s *Server) readPump(ctx context.Context, c *Conn) {
	code, reason := websocket.CloseNormalClosure, "eof"
	defer func() {
		c.close()
		s.Hub.RemoveConn(c)
		s.Subs.RemoveClient(c.id)
		_ = c.ws.Close()
		wsmetrics.OnClose(code, reason)
	}()

	c.ws.SetReadLimit(s.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(s.PongWait))
	c.ws.SetPongHandler(func(string) error {
		wsmetrics.PongRecvTotal.Inc()
		_ = c.ws.SetReadDeadline(time.Now().Add(s.PongWait))
		return nil
	})

	for {
		if ctx.Err() != nil {
			reason = "shutdown"
			return
		}
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			var ne net.Error
			switch {
			case errors.As(err, &ce):
				code, reason = ce.Code, "client"
			case errors.As(err, &ne) && ne.Timeout():
				code, reason = websocket.CloseGoingAway, "pong_timeout"
				wsmetrics.PongTimeoutTotal.Inc()
			default:
				code, reason = websocket.CloseAbnormalClosure, "read_error"
			}
			return
		}
		s.handle(ctx, c, b)
	}
}

func (s *Server) handle(ctx context.Context, c *Conn, b []byte) {
	var msg ClientMsg
	if err := json.Unmarshal(b, &msg); err != nil {
		c.Reply(encodeReply(MsgError, nil, errBadMessage))
		return
	}
	switch msg.Type {
	case MsgSubscribe:
		wsmetrics.SubOpsTotal.WithLabelValues("sub").Inc()
		ids, err := s.Subs.Subscribe(ctx, c.id, msg.Payload)
		if err != nil {
			s.log.Debug("ws subscribe rejected", zap.String("client_id", c.id), zap.Error(err))
			c.Reply(encodeReply(MsgError, nil, err))
			return
		}
		c.Reply(encodeReply(MsgSubscribed, ids, nil))
		s.Hub.Join(c, ids)
	case MsgUnsubscribe:
		wsmetrics.SubOpsTotal.WithLabelValues("unsub").Inc()
		ids, err := s.Subs.Unsubscribe(ctx, c.id, msg.Payload)
		if err != nil {
			c.Reply(encodeReply(MsgError, nil, err))
			return
		}
		s.Hub.Leave(c, ids)
		c.Reply(encodeReply(MsgUnsubscribed, ids, nil))
	default:
		c.Reply(encodeReply(MsgError, nil, errBadMessage))
	}
}

func (s *Server) writePump(ctx context.Context, c *Conn) {
	// 打散 ping，避免大量连接同一时刻发
	if s.PingJitter > 0 {
		t := time.NewTimer(rand.N(s.PingJitter))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			_ = c.ws.Close()
			return
		}
	}

	ticker := time.NewTicker(s.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.notify:
			batch := c.flush(maxFlush)
			if len(batch) == 0 {
				continue
			}
			if err := s.writeBatch(c, batch); err != nil {
				s.log.Debug("ws write", zap.String("client_id", c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			wsmetrics.PingSentTotal.Inc()
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.WriteWait)); err != nil {
				wsmetrics.PingErrorsTotal.Inc()
				return
			}
		case <-ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"), time.Now().Add(s.WriteWait))
			return
		}
	}
}

// writeBatch 一条 payload 一个 text frame，整批共用一个写超时
func (s *Server) writeBatch(c *Conn, batch [][]byte) error {
	start := time.Now()
	_ = c.ws.SetWriteDeadline(start.Add(s.WriteWait))
	var (
		bytes int
		err   error
	)
	for _, payload := range batch {
		if err = c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
			break
		}
		bytes += len(payload)
	}
	wsmetrics.ObserveWrite(len(batch), bytes, time.Since(start), err)
	return err
}

var errBadMessage = xerr.New(xerr.RequestParamsError, "invalid message")
