package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tendertales/storyteller/internal/config"
	"github.com/tendertales/storyteller/internal/handlers"
	"github.com/tendertales/storyteller/internal/kafka"
	"github.com/tendertales/storyteller/internal/llm"
	"github.com/tendertales/storyteller/internal/replicate"
	"github.com/tendertales/storyteller/internal/services"
	"github.com/tendertales/storyteller/internal/storage"
)

const uploadsPrefix = "/uploads"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().Msg("Starting Storyteller API")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	model, modelName, err := llm.NewStoryModel(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize story model")
	}
	writer := llm.NewStoryWriter(model, modelName, cfg.StoryTemperature, cfg.StoryMaxTokens)

	// Photo store: local disk (served under /uploads) or S3
	var photos services.ObjectStore
	var localStore *storage.LocalStore
	switch cfg.PhotoStore {
	case config.PhotoStoreS3:
		s3Store, err := storage.NewS3Store(ctx,
			cfg.S3Endpoint, cfg.S3Region, cfg.S3Bucket,
			cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3PublicURL, cfg.S3PresignTTL,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize S3 store")
		}
		photos = s3Store
	case config.PhotoStoreLocal:
		localStore, err = storage.NewLocalStore(cfg.UploadDir, uploadsPrefix)
		if err != nil {
			log.Fatal().Err(err).Str("dir", cfg.UploadDir).Msg("Failed to initialize upload directory")
		}
		photos = localStore
		go localStore.RunSweeper(ctx, cfg.PhotoRetention/4, cfg.PhotoRetention)
	}

	deps := services.Deps{
		Writer: writer,
		Photos: photos,
	}
	if cfg.OpenAIAPIKey != "" {
		deps.Describer = llm.NewVisionClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.VisionModel)
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, photos will not be described")
	}

	switch cfg.ImageStrategy {
	case config.ImageStrategyPoll, config.ImageStrategyRun:
		if cfg.ReplicateAPIToken == "" {
			log.Warn().Str("strategy", cfg.ImageStrategy).Msg("REPLICATE_API_TOKEN not set, illustrations disabled")
			break
		}
		illustrator, err := replicate.NewClient(replicate.Options{
			BaseURL:      cfg.ReplicateBaseURL,
			Token:        cfg.ReplicateAPIToken,
			Mode:         cfg.ImageStrategy,
			Version:      cfg.ReplicateModelVersion,
			RunVersion:   cfg.ReplicateRunVersion,
			PollInterval: cfg.PollInterval,
			MaxPolls:     cfg.MaxPolls,
			RunWait:      cfg.RunWait,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Replicate client")
		}
		deps.Illustrator = illustrator
	case config.ImageStrategyGemini:
		illustrator, err := llm.NewGeminiIllustrator(ctx, cfg.GeminiAPIKey, cfg.GeminiAPIEndpoint, cfg.GeminiModelImage, photos)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Gemini illustrator")
		}
		defer illustrator.Close()
		deps.Illustrator = illustrator
	case config.ImageStrategyNone:
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicEvents)
		defer producer.Close()
		deps.Events = producer
	}

	storyService := services.NewStoryService(deps, services.Options{
		StoryFormat:       cfg.StoryFormat,
		StoryWords:        cfg.StoryWords,
		MaxFieldLength:    cfg.MaxFieldLength,
		MaxPhotoSize:      cfg.MaxPhotoSize,
		ImageFailureFatal: cfg.ImageFailureFatal,
		Strategy:          cfg.ImageStrategy,
	})

	h := handlers.NewHandler(storyService, cfg.MaxPhotoSize, cfg.RequestTimeout)

	r := mux.NewRouter()
	r.HandleFunc("/", h.Index).Methods("GET")
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/generate-story", h.GenerateStory).Methods("POST")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	if localStore != nil {
		r.PathPrefix(uploadsPrefix + "/").Handler(
			http.StripPrefix(uploadsPrefix+"/", noDirListing(http.FileServer(http.Dir(localStore.Dir())))),
		).Methods("GET")
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Request-ID"},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           corsHandler.Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 15*time.Second,
	}

	go func() {
		log.Info().
			Str("addr", cfg.HTTPAddr).
			Str("image_strategy", cfg.ImageStrategy).
			Str("story_format", cfg.StoryFormat).
			Msg("API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("Shutting down API...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("API exited")
}

// noDirListing hides directory indexes of the upload store; only direct file keys are served.
func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
