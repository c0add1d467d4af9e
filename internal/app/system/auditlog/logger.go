// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"strings"

	"github.com/dalemusser/dikshahub/internal/app/scheduling"
	"github.com/dalemusser/dikshahub/internal/app/store/audit"
	"go.uber.org/zap"
)

// Destinations for a category.
const (
	ModeAll = "all" // MongoDB + zap
	ModeDB  = "db"  // MongoDB only
	ModeLog = "log" // zap only
	ModeOff = "off"
)

// Config holds audit logging configuration.
type Config struct {
	// Assignment controls logging for card operations (assign, confirm, reject, out, done, move).
	Assignment string
	// Container controls logging for container administration (unlock, set limit).
	Container string
}

// Logger records scheduling audit entries to MongoDB (via audit.Store) and
// structured logs (via zap). It implements scheduling.Auditor.
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

var _ scheduling.Auditor = (*Logger)(nil)

// New creates a new audit Logger. store may be nil when no MongoDB is
// configured; "db" then behaves like "off" and "all" like "log".
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	if zapLog == nil {
		zapLog = zap.NewNop()
	}
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// categoryOf maps an engine action to an audit category and event type.
func categoryOf(action string) (category, eventType string) {
	switch action {
	case scheduling.ActionAssign:
		return audit.CategoryAssignment, audit.EventAssigned
	case scheduling.ActionConfirm:
		return audit.CategoryAssignment, audit.EventConfirmed
	case scheduling.ActionReject:
		return audit.CategoryAssignment, audit.EventRejected
	case scheduling.ActionOut:
		return audit.CategoryAssignment, audit.EventOut
	case scheduling.ActionDone:
		return audit.CategoryAssignment, audit.EventDone
	case scheduling.ActionMove:
		return audit.CategoryAssignment, audit.EventMoved
	case scheduling.ActionUnlock:
		return audit.CategoryContainer, audit.EventUnlocked
	case scheduling.ActionSetLimit:
		return audit.CategoryContainer, audit.EventLimitChanged
	}
	return audit.CategoryAssignment, action
}

// Record implements scheduling.Auditor.
func (l *Logger) Record(ctx context.Context, e scheduling.AuditEntry) {
	if l == nil {
		return
	}
	category, eventType := categoryOf(e.Action)
	l.Log(ctx, audit.Event{
		Timestamp:     e.At,
		Category:      category,
		EventType:     eventType,
		ActorID:       e.Actor.ID,
		ActorName:     e.Actor.Name,
		ContainerID:   e.ContainerID,
		Stage:         string(e.Stage),
		Date:          e.Date,
		AssignmentIDs: e.AssignmentIDs,
		CommitMessage: e.CommitMessage,
		Details:       e.Details,
	})
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.String("actor_id", event.ActorID),
	}
	if event.ContainerID != "" {
		fields = append(fields,
			zap.String("container_id", event.ContainerID),
			zap.String("stage", event.Stage),
			zap.String("date", event.Date))
	}
	if len(event.AssignmentIDs) > 0 {
		fields = append(fields, zap.String("assignment_ids", strings.Join(event.AssignmentIDs, ",")))
	}
	if event.CommitMessage != "" {
		fields = append(fields, zap.String("commit_message", event.CommitMessage))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}
	l.zapLog.Info("audit event", fields...)
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryAssignment:
		setting = l.config.Assignment
	case audit.CategoryContainer:
		setting = l.config.Container
	}
	if setting == "" {
		setting = ModeAll
	}
	if setting == ModeOff {
		return
	}

	if setting == ModeAll || setting == ModeLog {
		l.logToZap(event)
	}

	if (setting == ModeAll || setting == ModeDB) && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// ValidMode reports whether v is a recognized destination.
func ValidMode(v string) bool {
	switch v {
	case ModeAll, ModeDB, ModeLog, ModeOff:
		return true
	}
	return false
}
