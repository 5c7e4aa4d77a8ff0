package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ortho-cohortgen/internal/domain"
	"github.com/ortho-cohortgen/internal/middleware"
	"github.com/ortho-cohortgen/internal/service"
)

const streamWriteWait = 10 * time.Second

// StreamMessage is one frame of the dataset stream: a schema frame, one
// record frame per case, then a done or error frame.
type StreamMessage struct {
	Type     string              `json:"type"`
	Index    int                 `json:"index"`
	Schema   *domain.TableSchema `json:"schema,omitempty"`
	Record   *domain.CaseRecord  `json:"record,omitempty"`
	Produced int                 `json:"produced,omitempty"`
	Error    *domain.APIError    `json:"error,omitempty"`
}

// Stream frame types
const (
	FrameSchema = "schema"
	FrameRecord = "record"
	FrameDone   = "done"
	FrameError  = "error"
)

// handleStream upgrades to a websocket and sends records as they are drawn.
// Parameters are validated before the upgrade so bad requests get a plain
// HTTP error. Closing the socket cancels generation.
func (s *Server) handleStream(c *gin.Context) {
	req, ok := s.streamRequest(c)
	if !ok {
		return
	}
	if _, err := s.service.Prepare(req); err != nil {
		s.fail(c, err)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return s.cfg.AllowedOrigin == "" || s.cfg.AllowedOrigin == "*" || origin == "" || origin == s.cfg.AllowedOrigin
		},
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Reading is only needed to notice the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	stream, plan, err := s.service.Stream(ctx, req)
	if err != nil {
		s.writeFrame(conn, StreamMessage{Type: FrameError, Error: s.frameError(c, err)})
		return
	}

	schema := plan.Schema()
	if err := s.writeFrame(conn, StreamMessage{Type: FrameSchema, Schema: &schema}); err != nil {
		return
	}
	for stream.Next() {
		rec := stream.Record()
		if err := s.writeFrame(conn, StreamMessage{Type: FrameRecord, Index: stream.Produced() - 1, Record: &rec}); err != nil {
			cancel()
			break
		}
	}
	if err := stream.Err(); err != nil {
		s.logger.WithFields(logrus.Fields{
			"rule_set": req.RuleSet,
			"produced": stream.Produced(),
		}).WithError(err).Info("Dataset stream stopped")
		s.writeFrame(conn, StreamMessage{Type: FrameError, Error: s.frameError(c, err)})
		return
	}

	s.writeFrame(conn, StreamMessage{Type: FrameDone, Produced: stream.Produced()})
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
		time.Now().Add(streamWriteWait))
}

func (s *Server) streamRequest(c *gin.Context) (service.GenerateRequest, bool) {
	req := service.GenerateRequest{RuleSet: c.Query("rule_set")}

	var (
		seed *int64
		err  error
	)
	if v := c.Query("seed"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			middleware.Abort(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "seed must be an integer", err.Error())
			return req, false
		}
		seed = &parsed
	}
	if v := c.Query("num_samples"); v != "" {
		if req.NumSamples, err = strconv.Atoi(v); err != nil {
			middleware.Abort(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "num_samples must be an integer", err.Error())
			return req, false
		}
	}
	req = service.ResolveRequest(req, seed, s.defaults)
	if s.cfg.MaxSamples > 0 && req.NumSamples > s.cfg.MaxSamples {
		middleware.Abort(c, http.StatusBadRequest, domain.ErrCodeConfiguration, "num_samples exceeds the server limit", strconv.Itoa(s.cfg.MaxSamples))
		return req, false
	}
	return req, true
}

func (s *Server) writeFrame(conn *websocket.Conn, msg StreamMessage) error {
	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(msg)
}

func (s *Server) frameError(c *gin.Context, err error) *domain.APIError {
	return domain.NewAPIError(domain.CodeOf(err), err.Error(), "", c.GetString(middleware.CorrelationIDKey))
}
