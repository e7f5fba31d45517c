package logs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	arborlevels "github.com/ternarybob/arbor/levels"
	arbormodels "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
)

// Consumer drains log batches from arbor's context channel and persists
// entries at or above the configured store level. Observability only; a
// failed write never interrupts the engine.
type Consumer struct {
	storage       interfaces.LogStorage
	logger        arbor.ILogger
	channel       chan []arbormodels.LogEvent
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	minStoreLevel arbor.LogLevel
}

// NewConsumer creates a new log consumer
func NewConsumer(storage interfaces.LogStorage, logger arbor.ILogger, minStoreLevel string) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		storage:       storage,
		logger:        logger,
		channel:       make(chan []arbormodels.LogEvent, 10),
		ctx:           ctx,
		cancel:        cancel,
		minStoreLevel: parseLogLevel(minStoreLevel),
	}
}

// parseLogLevel converts string log level to arbor.LogLevel
func parseLogLevel(levelStr string) arbor.LogLevel {
	switch strings.ToLower(levelStr) {
	case "debug":
		return arbor.DebugLevel
	case "info":
		return arbor.InfoLevel
	case "warn", "warning":
		return arbor.WarnLevel
	case "error":
		return arbor.ErrorLevel
	default:
		return arbor.WarnLevel
	}
}

// convertTo3Letter converts full level names to 3-letter codes
func convertTo3Letter(level string) string {
	switch strings.ToUpper(level) {
	case "INFO":
		return "INF"
	case "WARN", "WARNING":
		return "WRN"
	case "ERROR":
		return "ERR"
	case "DEBUG":
		return "DBG"
	default:
		if len(level) == 3 {
			return strings.ToUpper(level)
		}
		return "INF"
	}
}

// GetChannel returns the channel for arbor to send log batches to
func (c *Consumer) GetChannel() chan []arbormodels.LogEvent {
	return c.channel
}

// Start launches the consumer goroutine
func (c *Consumer) Start() error {
	c.wg.Add(1)
	go c.consume()
	return nil
}

// Stop gracefully shuts down the consumer
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return nil
}

func (c *Consumer) consume() {
	defer c.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Log consumer panic recovered")
		}
	}()

	for {
		select {
		case batch, ok := <-c.channel:
			if !ok {
				return
			}

			entries := make([]*models.AppLogEntry, 0, len(batch))
			for _, event := range batch {
				if !c.shouldStore(event.Level) {
					continue
				}
				entries = append(entries, transformEvent(event))
			}
			if len(entries) == 0 {
				continue
			}

			if err := c.storage.InsertLogEntries(c.ctx, entries); err != nil {
				// Plain logger write only; a storage-backed log here would
				// recurse through the channel.
				c.logger.Warn().
					Err(err).
					Int("log_count", len(entries)).
					Msg("Failed to persist log batch")
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// shouldStore checks an event's level against the store threshold.
func (c *Consumer) shouldStore(level log.Level) bool {
	return arborlevels.FromLogLevel(level) >= c.minStoreLevel
}

// transformEvent converts an arbor LogEvent into a persistable entry. The
// "category" field becomes the entry category; remaining fields serialize
// into the properties blob.
func transformEvent(event arbormodels.LogEvent) *models.AppLogEntry {
	entry := &models.AppLogEntry{
		TimestampUTC: event.Timestamp.UTC(),
		Level:        convertTo3Letter(event.Level.String()),
		Message:      event.Message,
	}

	if len(event.Fields) > 0 {
		properties := make(map[string]interface{}, len(event.Fields))
		for key, value := range event.Fields {
			switch key {
			case "category":
				entry.Category = fmt.Sprintf("%v", value)
				continue
			case "error":
				entry.Exception = fmt.Sprintf("%v", value)
				continue
			}
			properties[key] = value
		}
		if len(properties) > 0 {
			if data, err := json.Marshal(properties); err == nil {
				entry.PropertiesJSON = string(data)
			}
		}
	}
	return entry
}
