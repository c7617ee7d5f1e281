package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/gobwas/ws"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"watchparty.live/config"
	"watchparty.live/model"
	"watchparty.live/pkg/cors"
	"watchparty.live/pkg/msgbroker"
	"watchparty.live/pkg/utils"
	"watchparty.live/pkg/websocket"
	"watchparty.live/storage"
)

const roomChannelPrefix = "rooms:"

type API struct {
	echo       *echo.Echo
	config     *config.Config
	storage    storage.Storage
	registry   websocket.Registry
	msgBroker  msgbroker.MessageBroker
	workerPool *workerpool.WorkerPool
}

func New(c *config.Config, s storage.Storage, mb msgbroker.MessageBroker) *API {
	api := &API{
		echo:       echo.New(),
		config:     c,
		storage:    s,
		registry:   websocket.NewRegistry(),
		msgBroker:  mb,
		workerPool: workerpool.New(c.MaxWorkers),
	}

	api.echo.HideBanner = true
	api.echo.Use(cors.Middleware)

	api.echo.GET("/", api.ping)
	api.echo.GET("/state", api.getState)
	api.echo.POST("/update", api.updateState)
	api.echo.GET("/stats", api.stats)
	api.echo.Any("/ws", api.websocket)

	return api
}

func (api *API) Start() error {
	err := api.msgBroker.Subscribe(roomChannelPrefix+"*", api.handleRoomEvents)
	if err != nil {
		return err
	}
	return api.echo.Start(":" + strconv.Itoa(api.config.HttpPort))
}

func (api *API) Close(ctx context.Context) error {
	err := api.echo.Shutdown(ctx)
	api.workerPool.StopWait()
	_ = api.msgBroker.Unsubscribe(roomChannelPrefix + "*")
	return err
}

// Liveness handler
func (api *API) ping(c echo.Context) error {
	api.workerPool.Submit(func() {
		if _, err := api.storage.IncrVisits(); err != nil {
			log.Error(err)
		}
	})
	return c.String(http.StatusOK, "watch party relay alive")
}

// Returns the latest playback snapshot for a room, or null if the room
// has never been written to.
func (api *API) getState(c echo.Context) error {
	roomID := c.QueryParam("room")
	if roomID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Missing room parameter"})
	}

	state, err := api.storage.GetState(roomID)
	if err != nil {
		log.Error(err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "state lookup failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"state": state})
}

type updateRequest struct {
	ClientID string               `json:"clientId"`
	State    *model.PlaybackState `json:"state"`
}

// Stores a snapshot on behalf of a polling client and fans it out to the
// room's live connections, nobody excluded. Unlike the live channel this
// path is not host-gated; the polling caller is trusted by construction.
func (api *API) updateState(c echo.Context) error {
	roomID := c.QueryParam("room")
	if roomID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Missing room parameter"})
	}

	var req updateRequest
	if err := c.Bind(&req); err != nil || req.State == nil {
		if err != nil {
			log.Warn(err)
		}
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid state data"})
	}

	if err := api.storage.SetState(roomID, req.State); err != nil {
		log.Error(err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "state update failed"})
	}

	from := &model.Member{ID: req.ClientID, Nickname: utils.TruncateRunes(req.ClientID, 8)}
	if err := api.publishRoomEvent(roomID, "", websocket.NewStateEvent(from, req.State)); err != nil {
		log.Warn(err)
	}

	log.Infof("polling update for room %s by %s", roomID, req.ClientID)
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// Registry counters plus today's visit count
func (api *API) stats(c echo.Context) error {
	rooms, clients := api.registry.Stats()
	visits, err := api.storage.GetVisitsByDate(time.Now())
	if err != nil {
		log.Info(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"rooms": rooms, "clients": clients, "visits": visits})
}

// Endpoint to establish websocket connection. The session joins a room
// only through an explicit join message, never at upgrade time.
func (api *API) websocket(c echo.Context) error {
	conn, _, _, err := ws.UpgradeHTTP(c.Request(), c.Response())
	if err != nil {
		log.Warn(err)
		return c.NoContent(http.StatusBadRequest)
	}

	sess := newSession(api, uuid.New().String(), conn)
	go sess.writeLoop()
	sess.readLoop()

	api.workerPool.Submit(func() {
		sess.leaveRoom()
		log.Infof("session %s disconnected", sess.id)
	})
	return nil
}

// publishRoomEvent encodes event and hands it to the broker; the
// subscriber side performs the registry fan-out in publish order.
func (api *API) publishRoomEvent(roomID, excludeID string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	b, err := json.Marshal(&websocket.RoomEvent{RoomID: roomID, ExcludeID: excludeID, Payload: payload})
	if err != nil {
		return err
	}
	return api.msgBroker.Publish(b, roomChannelPrefix+roomID)
}

// Broker subscription callback. Runs on the broker's dispatch goroutine,
// so events for one room fan out in the order they were published.
func (api *API) handleRoomEvents(msg *msgbroker.Message) {
	var ev websocket.RoomEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		log.Errorf("malformed room event on %s: %v", msg.Channel, err)
		return
	}
	api.registry.Broadcast(ev.RoomID, ev.Payload, ev.ExcludeID)
}
