package worker

import (
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// StartNotificationWorker subscribes the dispatcher and the history recorder to the event bus.
func StartNotificationWorker(bus events.Dispatcher, notificationService *service.NotificationService, history *service.HistoryRecorder) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if history != nil && bus != nil {
		history.RegisterHandlers(bus)
	}
}
