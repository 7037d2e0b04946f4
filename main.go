package main

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"voicematch-service/internal/db"
	"voicematch-service/internal/handlers"
	"voicematch-service/internal/identity"
	"voicematch-service/internal/middleware"
	"voicematch-service/internal/observability"
	"voicematch-service/internal/rabbitmq"
	"voicematch-service/internal/repositories"
	"voicematch-service/internal/telemetry"
	"voicematch-service/internal/ws"
)

func main() {
	if getEnv("ENV", "dev") == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	ctx := context.Background()
	shutdownTracing, err := observability.SetupTracing(ctx, "voicematch-service", getEnv("OTLP_ADDR", ""))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}
	defer func() {
		_ = shutdownTracing(context.Background())
	}()

	database, err := db.Connect()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db")
	}

	idClient := identity.NewHTTPClient(getEnv("IDENTITY_HTTP_ADDR", "http://localhost:8084"))

	publisher := rabbitmq.NewPublisher(getEnv("AMQP_URL", ""), getEnv("AMQP_EXCHANGE", "voicematch.events"))
	defer publisher.Close()
	log.Info().Str("mode", rabbitmq.PublisherMode(publisher)).Msg("event publisher ready")

	emitter := telemetry.NewCallEventEmitter(publisher, "voicematch-service", getEnv("ENV", "dev"))

	queueRepo := repositories.NewQueueRepo(database)
	matchRepo := repositories.NewMatchRepo(database)
	callRepo := repositories.NewCallRepo(database)
	signalRepo := repositories.NewSignalRepo(database)
	feedbackRepo := repositories.NewFeedbackRepo(database)
	friendRepo := repositories.NewFriendRepo(database)

	hub := ws.NewHub()

	matchHandler := handlers.NewMatchHandler(queueRepo, matchRepo, idClient, hub, emitter)
	callHandler := handlers.NewCallHandler(callRepo, signalRepo, hub, emitter)
	signalHandler := handlers.NewSignalHandler(callRepo, signalRepo, hub)
	feedbackHandler := handlers.NewFeedbackHandler(callRepo, feedbackRepo, emitter)
	friendHandler := handlers.NewFriendHandler(friendRepo)

	matchWS := ws.NewMatchWebSocketHandler(hub, idClient)
	signalWS := ws.NewSignalWebSocketHandler(hub, callRepo, idClient)

	go runSignalSweeper(ctx, signalRepo)

	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("voicematch-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(idClient)

	router.POST("/match/search", authMiddleware, matchHandler.StartSearch)
	router.DELETE("/match/search", authMiddleware, matchHandler.CancelSearch)

	router.GET("/calls/:call_id", authMiddleware, callHandler.GetCall)
	router.POST("/calls/:call_id/end", authMiddleware, callHandler.EndCall)
	router.POST("/calls/:call_id/signals", authMiddleware, signalHandler.PostSignal)
	router.GET("/calls/:call_id/signals", authMiddleware, signalHandler.ListSignals)
	router.POST("/calls/:call_id/feedback", authMiddleware, feedbackHandler.SubmitFeedback)

	router.POST("/friends/requests", authMiddleware, friendHandler.SendFriendRequest)

	router.GET("/ws/match", matchWS.Handle)
	router.GET("/ws/calls/:call_id", signalWS.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	port := getEnv("PORT", "8086")
	if err := router.Run(":" + port); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

// runSignalSweeper garbage-collects signaling envelopes of calls that
// ended more than the retention window ago.
func runSignalSweeper(ctx context.Context, signalRepo repositories.SignalRepository) {
	retention, err := time.ParseDuration(getEnv("SIGNAL_RETENTION", "5m"))
	if err != nil {
		log.Warn().Err(err).Msg("invalid SIGNAL_RETENTION, using 5m")
		retention = 5 * time.Minute
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := signalRepo.PurgeEnded(ctx, retention)
			if err != nil {
				log.Error().Err(err).Msg("signal purge failed")
				continue
			}
			if purged > 0 {
				observability.AddSignalsPurged(purged)
				log.Debug().Int64("purged", purged).Msg("signal envelopes garbage-collected")
			}
		}
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
