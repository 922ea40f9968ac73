package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rewired-gh/evgraph/internal/chart"
	"github.com/rewired-gh/evgraph/internal/logger"
	"github.com/rewired-gh/evgraph/internal/viewport"
)

const (
	wsIdleTimeout  = 5 * time.Minute
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Frame types sent to the client.
const (
	frameInit   = "init"
	frameUpdate = "frame"
	frameError  = "error"
)

// frame is one server message. init carries the chart-wide data once;
// every frame carries the window for the current viewport.
type frame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Seq       int             `json:"seq"`
	N         int             `json:"n"`
	Empty     bool            `json:"empty"`
	Dragging  bool            `json:"dragging"`
	Window    *chart.Window   `json:"window,omitempty"`
	Overlays  []chart.Overlay `json:"overlays,omitempty"`
	Stats     *chart.Stats    `json:"stats,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// chartView is the state of one interactive chart: the chart it draws
// and the controller that owns its viewport. Events must be delivered one
// at a time.
type chartView struct {
	id    string
	chart *chart.Chart
	ctrl  *viewport.Controller
	seq   int
}

func newChartView(ch *chart.Chart) *chartView {
	return &chartView{
		id:    uuid.NewString(),
		chart: ch,
		ctrl:  viewport.NewController(ch.N()),
	}
}

func (v *chartView) initFrame() frame {
	f := v.frame(frameInit)
	f.Overlays = v.chart.Overlays
	stats := v.chart.Stats
	f.Stats = &stats
	return f
}

// handle applies one raw client message and returns the reply.
func (v *chartView) handle(msg []byte) frame {
	var ev viewport.Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		return v.errorFrame("malformed event: " + err.Error())
	}
	if !ev.Kind.Valid() {
		return v.errorFrame("unknown event type: " + string(ev.Kind))
	}
	v.ctrl.Handle(ev)
	chartEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	return v.frame(frameUpdate)
}

// close releases any drag in progress.
func (v *chartView) close() {
	v.ctrl.EndDrag()
}

func (v *chartView) frame(kind string) frame {
	v.seq++
	f := frame{
		Type:      kind,
		SessionID: v.id,
		Seq:       v.seq,
		N:         v.ctrl.N(),
		Dragging:  v.ctrl.Dragging(),
	}
	view, ok := v.ctrl.View()
	if !ok {
		f.Empty = true
		return f
	}
	if w, ok := v.chart.Window(view); ok {
		f.Window = &w
	}
	return f
}

func (v *chartView) errorFrame(msg string) frame {
	f := v.frame(frameError)
	f.Error = msg
	return f
}

// chartSession upgrades to a WebSocket and runs one chart view over it.
// Each inbound gesture is applied and answered before the next is read.
func (s *Server) chartSession(c *gin.Context) {
	betID, ok := betIDParam(c)
	if !ok {
		return
	}
	sessionID, ok := optionalSessionID(c)
	if !ok {
		return
	}
	ch, err := s.loadChart(c.Request.Context(), betID, sessionID)
	if err != nil {
		s.fail(c, "load chart", err, chartNotFound(err))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	view := newChartView(ch)
	defer view.close()

	chartSessionsActive.Inc()
	defer chartSessionsActive.Dec()
	logger.Debug("chart session %s opened for bet %s (%d samples)", view.id, betID, ch.N())

	conn.SetReadLimit(wsReadLimit)
	if err := writeFrame(conn, view.initFrame()); err != nil {
		logger.Debug("chart session %s: initial write failed: %v", view.id, err)
		return
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("chart session %s: read error: %v", view.id, err)
			}
			break
		}
		if mt != websocket.TextMessage {
			continue
		}
		if err := writeFrame(conn, view.handle(msg)); err != nil {
			logger.Debug("chart session %s: write failed: %v", view.id, err)
			break
		}
	}
	logger.Debug("chart session %s closed", view.id)
}

func writeFrame(conn *websocket.Conn, f frame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(f)
}
