package orchestrator

import (
	"context"

	"git.brightsales.dev/crm/golang/callweaver/internal/asr"
	"git.brightsales.dev/crm/golang/callweaver/internal/audio"
	"git.brightsales.dev/crm/golang/callweaver/internal/callrecord"
	"git.brightsales.dev/crm/golang/callweaver/internal/channelrole"
	"git.brightsales.dev/crm/golang/callweaver/internal/config"
	"git.brightsales.dev/crm/golang/callweaver/internal/identity"
	"git.brightsales.dev/crm/golang/callweaver/internal/insight"
	"git.brightsales.dev/crm/golang/callweaver/internal/kafka"
	"git.brightsales.dev/crm/golang/callweaver/internal/logging"
	"git.brightsales.dev/crm/golang/callweaver/internal/minio"
	"git.brightsales.dev/crm/golang/callweaver/internal/provider"
	"git.brightsales.dev/crm/golang/callweaver/internal/recording"
	"git.brightsales.dev/crm/golang/callweaver/internal/transcript"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App wires the webhook handlers to the pipeline components. Webhook
// handlers must acknowledge within seconds, so anything slower than a DB
// write is submitted to the worker pool against the app context, which
// outlives the originating HTTP request.
type App struct {
	Repository  *callrecord.Repository
	Provider    *provider.Client
	Resolver    *identity.Resolver
	Classifier  *channelrole.Classifier
	Coordinator *recording.Coordinator
	Pipeline    *transcript.Pipeline
	Synthesizer *insight.Synthesizer
	Producer    *kafka.Producer
	Archiver    *audio.Archiver
	WorkerPool  *ants.Pool
	Redrive     *transcript.Worker

	appCtx context.Context
}

func NewApp(ctx context.Context, dbConn *gorm.DB) (*App, error) {
	repository := callrecord.NewRepository(dbConn)
	providerClient := provider.NewClient()
	classifier := channelrole.NewClassifier()

	var asrClient *asr.Client
	if config.Conf.OpenAIAPIKey != "" {
		asrClient = asr.NewClient()
	}

	pipeline := transcript.NewPipeline(providerClient, repository, classifier, asrClient)

	workerPool, err := ants.NewPool(config.Conf.PoolSize, ants.WithPreAlloc(true))
	if err != nil {
		return nil, err
	}

	app := &App{
		Repository:  repository,
		Provider:    providerClient,
		Resolver:    identity.NewResolver(repository),
		Classifier:  classifier,
		Coordinator: recording.NewCoordinator(providerClient, repository),
		Pipeline:    pipeline,
		Synthesizer: insight.NewSynthesizer(),
		WorkerPool:  workerPool,
		appCtx:      ctx,
	}

	app.Redrive, err = transcript.NewWorker(pipeline, repository, app.applyTranscriptResult)
	if err != nil {
		return nil, err
	}

	if config.Conf.KafkaBootstrapServer != "" {
		app.Producer, err = kafka.NewProducer()
		if err != nil {
			return nil, err
		}
	}

	if config.Conf.MinioEndpointURL != "" {
		minioClient, err := minio.NewMinioClient()
		if err != nil {
			return nil, err
		}

		app.Archiver = audio.NewArchiver(providerClient, minioClient, repository)
	}

	return app, nil
}

// Run starts the background workers. It returns immediately.
func (app *App) Run() {
	go app.Redrive.Run(app.appCtx)
}

func (app *App) Close() {
	app.WorkerPool.Release()
	app.Redrive.WorkerPool.Release()

	if app.Producer != nil {
		err := app.Producer.Close()
		if err != nil {
			logging.Logger.Error("failed to close kafka producer", zap.String("error", err.Error()))
		}
	}
}

// submit offloads work to the pool against the app context so the webhook
// response is not held hostage by provider round trips.
func (app *App) submit(task func(ctx context.Context)) {
	err := app.WorkerPool.Submit(func() {
		task(app.appCtx)
	})
	if err != nil {
		logging.Logger.Error("failed to submit task to worker pool", zap.String("error", err.Error()))
	}
}
