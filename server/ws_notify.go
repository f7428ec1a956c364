package server

import (
	"net/http"
	"time"

	"Sonara/logger"

	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsWriteTimeout 单帧写超时，慢客户端直接断开
const wsWriteTimeout = 10 * time.Second

// NotifyHandler 把转码生命周期事件推送给发起方客户端
// GET /api/ws/notify?session={id}
func (h *APIHandler) NotifyHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		writeAPIError(w, http.StatusBadRequest, "INVALID_SESSION", "缺少session参数")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket升级失败", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	events, cancel := h.notifier.Subscribe(sessionID)
	defer cancel()

	logger.Info("通知客户端已连接", logger.String("sessionId", sessionID))

	// 读协程只为感知客户端断开，收到任何错误就退出
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				logger.Debug("推送事件失败，客户端可能已断开",
					logger.String("sessionId", sessionID),
					logger.ErrorField(err))
				return
			}
		case <-done:
			logger.Debug("通知客户端已断开", logger.String("sessionId", sessionID))
			return
		}
	}
}
