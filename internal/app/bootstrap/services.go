package bootstrap

import (
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/valooran/patient-intake-system/internal/config"
	"github.com/valooran/patient-intake-system/internal/conversation"
	"github.com/valooran/patient-intake-system/internal/notify"
	"github.com/valooran/patient-intake-system/internal/observability/metrics"
	"github.com/valooran/patient-intake-system/pkg/logging"
)

// Sessions is the configured session store. Memory is set only for the in-process
// backend, whose idle sweep the caller runs.
type Sessions struct {
	Store  conversation.SessionStore
	Memory *conversation.MemorySessionStore
	// Locker is set for stores shared between processes.
	Locker conversation.TurnLocker
}

// turnLockSlack covers session I/O around the upstream call.
const turnLockSlack = 30 * time.Second

func turnLockTTL(cfg *appconfig.Config) time.Duration {
	timeout := cfg.LLMTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return timeout + turnLockSlack
}

// BuildSessionStore selects Redis when configured and reachable, otherwise memory.
func BuildSessionStore(cfg *appconfig.Config, redisClient *redis.Client, m *metrics.ConversationMetrics, sink conversation.EvictionSink, logger *logging.Logger) Sessions {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.UsesRedisSessions() && redisClient != nil {
		logger.Info("using redis session store", "idle_ttl", cfg.SessionIdleTTL.String())
		return Sessions{
			Store:  conversation.NewRedisSessionStore(redisClient, cfg.SessionIdleTTL),
			Locker: conversation.NewRedisTurnLock(redisClient, turnLockTTL(cfg)),
		}
	}
	if cfg.UsesRedisSessions() {
		logger.Warn("redis sessions requested but redis is unavailable; using memory store")
	}

	opts := []conversation.MemoryStoreOption{
		conversation.WithMaxSessions(cfg.SessionMaxActive),
		conversation.WithIdleTTL(cfg.SessionIdleTTL),
		conversation.WithStoreLogger(logger),
	}
	if m != nil {
		opts = append(opts, conversation.WithSessionObserver(m))
	}
	if sink != nil {
		opts = append(opts, conversation.WithEvictionSink(sink))
	}
	store := conversation.NewMemorySessionStore(opts...)
	logger.Info("using memory session store", "max_sessions", cfg.SessionMaxActive, "idle_ttl", cfg.SessionIdleTTL.String())
	return Sessions{Store: store, Memory: store}
}

// BuildEmailSender prefers SendGrid, then SES, then a logging stub.
func BuildEmailSender(cfg *appconfig.Config, sesClient *sesv2.Client, logger *logging.Logger) notify.EmailSender {
	if sender := notify.NewSendGridSender(cfg.SendGridAPIKey, notify.SenderConfig{
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sender != nil {
		return sender
	}
	if strings.TrimSpace(cfg.SESFromEmail) != "" {
		if sender := notify.NewSESSender(sesClient, notify.SenderConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
	}
	return notify.NewStubEmailSender(logger)
}
