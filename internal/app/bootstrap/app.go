// Package bootstrap wires the application from configuration. The HTTP
// server and the Lambda handler share the same App.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/guestpilot/internal/api/router"
	"github.com/wolfman30/guestpilot/internal/channels/whatsapp"
	appconfig "github.com/wolfman30/guestpilot/internal/config"
	"github.com/wolfman30/guestpilot/internal/conversation"
	"github.com/wolfman30/guestpilot/internal/http/handlers"
	"github.com/wolfman30/guestpilot/internal/intake"
	"github.com/wolfman30/guestpilot/internal/notify"
	"github.com/wolfman30/guestpilot/internal/observability/metrics"
	"github.com/wolfman30/guestpilot/internal/property"
	"github.com/wolfman30/guestpilot/internal/rental"
	"github.com/wolfman30/guestpilot/internal/reply"
	"github.com/wolfman30/guestpilot/internal/store"
	"github.com/wolfman30/guestpilot/pkg/logging"
)

// App is the fully wired application.
type App struct {
	Handler       http.Handler
	Store         store.Store
	Conversations *conversation.Service
	Properties    *property.Service
	Metrics       *metrics.IntakeMetrics

	closers []func()
}

// Close releases store, Redis and LLM resources in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Build wires every component from cfg. awsCfg is used by the DynamoDB
// store, the Bedrock client and the SES sender.
func Build(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	policy, err := conversation.ParseMatchPolicy(cfg.MatchPolicy)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	propertyMap, err := whatsapp.ParsePropertyMap(cfg.WhatsAppPropertyMap)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	emailSender, err := BuildEmailSender(cfg, awsCfg, logger)
	if err != nil {
		return nil, err
	}

	app := &App{}
	fail := func(err error) (*App, error) {
		app.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Metrics = metrics.NewIntakeMetrics(reg)

	backend, err := BuildStore(ctx, cfg, awsCfg, logger)
	if err != nil {
		return fail(err)
	}
	st := backend.Store
	app.Store = st
	app.closers = append(app.closers, backend.Close)

	redisClient := BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		logger.Info("redis coordination enabled", "addr", cfg.RedisAddr)
		app.closers = append(app.closers, func() { _ = redisClient.Close() })
	}
	locker := BuildLocker(redisClient, logger)
	deduper := BuildDeduper(redisClient, backend.Pool)

	llm, closeLLM, err := BuildLLMClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		return fail(err)
	}
	app.closers = append(app.closers, closeLLM)

	generator := reply.NewGenerator(llm, reply.GeneratorConfig{HistoryLimit: cfg.ReplyHistoryLimit}, logger)
	trigger := reply.NewTrigger(generator, reply.TriggerConfig{
		Timeout:      cfg.ReplyTimeout,
		FallbackText: cfg.ReplyFallbackText,
	}, app.Metrics, logger)

	resolver := conversation.NewResolver(st, locker, conversation.ResolverConfig{
		Policy:         policy,
		MaxAttempts:    cfg.StoreMaxAttempts,
		RetryBaseDelay: cfg.StoreRetryBaseDelay,
	}, app.Metrics, logger)
	app.Conversations = conversation.NewService(st, resolver, trigger, logger).
		WithNotifier(notify.NewHostNotifier(emailSender, logger))
	app.Properties = property.NewService(st, locker, logger)

	var waSender whatsapp.TextSender
	if cfg.WhatsAppAccessToken != "" && cfg.WhatsAppPhoneNumberID != "" {
		client := whatsapp.NewClient(cfg.WhatsAppAccessToken, cfg.WhatsAppPhoneNumberID)
		client.SetGraphAPIBase(cfg.WhatsAppAPIBase)
		waSender = client
		app.Conversations.WithGuestSender(rental.PlatformWhatsApp, client)
	} else {
		logger.Warn("whatsapp sending disabled; replies are stored but not delivered")
	}
	adapter := whatsapp.NewAdapter(
		app.Conversations,
		whatsapp.NewPropertyRouter(propertyMap, cfg.WhatsAppDefaultPropertyID),
		waSender,
		deduper,
		whatsapp.AdapterConfig{AllowUndated: cfg.WhatsAppAllowUndated},
		app.Metrics,
		logger,
	)

	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; admin API disabled")
	}
	app.Handler = router.New(&router.Config{
		Logger: logger,
		IntakeHandler: handlers.NewIntakeHandler(app.Conversations, intake.NewNormalizer(), handlers.IntakeConfig{
			RequireStayDates: cfg.IntakeRequireStayDates,
		}, app.Metrics, logger),
		WhatsAppHandler: handlers.NewWhatsAppHandler(adapter, handlers.WhatsAppConfig{
			VerifyToken: cfg.WhatsAppVerifyToken,
			AppSecret:   cfg.WhatsAppAppSecret,
		}, app.Metrics, logger),
		AdminHandler:       handlers.NewAdminHandler(app.Properties, app.Conversations, trigger, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		WebhookRateLimit:   cfg.WebhookRateLimit,
		WebhookRateBurst:   cfg.WebhookRateBurst,
	})

	logger.Info("application wired",
		"store_backend", cfg.StoreBackend,
		"match_policy", string(policy),
		"llm_provider", cfg.LLMProvider,
	)
	return app, nil
}
