package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zlnvch/collabdocs/metrics"
	"github.com/zlnvch/collabdocs/models"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Document content is capped
	// well below this.
	maxMessageSize = 1 << 20

	sendQueueSize = 128

	defaultMessagesPerSecond = 20
	defaultBurst             = 40
)

type MessageHandler func(ctx context.Context, client *Client, messageBytes []byte)

type ClientOptions struct {
	MessagesPerSecond float64
	Burst             int
}

func (o ClientOptions) limiter() *rate.Limiter {
	perSecond, burst := o.MessagesPerSecond, o.Burst
	if perSecond <= 0 {
		perSecond = defaultMessagesPerSecond
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func NewClient(conn *websocket.Conn, credential string, identity models.Identity, handler MessageHandler, options ClientOptions, log *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	connId := uuid.Must(uuid.NewV4()).String()
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		connId:     connId,
		credential: credential,
		identity:   identity,
		conn:       conn,
		handler:    handler,
		send:       make(chan []byte, sendQueueSize),
		quit:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		limiter:    options.limiter(),
		log:        log.With(zap.String("conn_id", connId)),
	}
}

// Client is a middleman between the websocket connection and the hub. It
// implements collab.Peer.
type Client struct {
	connId     string
	credential string
	identity   models.Identity
	conn       *websocket.Conn
	handler    MessageHandler
	send       chan []byte // Buffered channel of outbound messages.
	ctx        context.Context
	cancel     context.CancelFunc
	limiter    *rate.Limiter
	log        *zap.Logger

	// OnClose runs once the read pump exits.
	OnClose func(client *Client)

	quit       chan struct{}
	closeOnce  sync.Once
	closeFrame []byte
}

func (c *Client) ConnId() string { return c.connId }

func (c *Client) Credential() string { return c.credential }

func (c *Client) Identity() models.Identity { return c.identity }

// Send queues message for the write pump. A full queue drops the message.
func (c *Client) Send(message []byte) bool {
	select {
	case <-c.quit:
		return false
	default:
	}

	select {
	case c.send <- message:
		return true
	default:
		metrics.DroppedMessages.Inc()
		c.log.Warn("send queue full, message dropped", zap.String("user_id", c.identity.UserId))
		return false
	}
}

// Close makes the write pump flush queued messages, send a close frame with
// code and reason, then drop the connection.
func (c *Client) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeFrame = websocket.FormatCloseMessage(code, reason)
		close(c.quit)
	})
}

func (c *Client) ReadPump() {
	defer func() {
		if c.OnClose != nil {
			c.OnClose(c)
		}
		c.cancel()
		c.conn.Close()
		metrics.WebsocketConnections.Dec()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		messageType, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Info("websocket closed", zap.Error(err))
			}
			break
		}

		if !c.limiter.Allow() {
			c.log.Warn("message rate limit exceeded", zap.String("user_id", c.identity.UserId))
			c.Close(websocket.ClosePolicyViolation, "Rate limit exceeded")
			break
		}

		if messageType != websocket.TextMessage {
			continue
		}

		c.handler(c.ctx, c, messageBytes)
	}
}

func (c *Client) WritePump(shutdownCtx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug("websocket write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.quit:
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, c.closeFrame)
			return

		case <-c.ctx.Done():
			return

		case <-shutdownCtx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down"),
			)
			return
		}
	}
}

// flush writes whatever is already queued.
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}
