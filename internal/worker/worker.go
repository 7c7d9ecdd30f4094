package worker

import (
	"context"
	"log"
	"time"

	"github.com/renlei/mvstudio/internal/classifier"
	"github.com/renlei/mvstudio/internal/media"
	"github.com/renlei/mvstudio/internal/pipeline"
	"github.com/renlei/mvstudio/internal/queue"
	"github.com/renlei/mvstudio/internal/services"
)

// Worker drains the stage queues and drives project pipelines. Triggering
// API calls return as soon as a job is enqueued; all external generation and
// ffmpeg work happens here.
type Worker struct {
	manager *pipeline.Manager
	queue   *queue.Queue
	openai  *services.OpenAIService
	gemini  *services.GeminiService
	veo     *services.VeoService
	ffmpeg  *media.FFmpegService
	rec     *media.Reconciler

	workDir          string
	imageConcurrency int
	classifierOpts   classifier.Options
}

func New(
	manager *pipeline.Manager,
	q *queue.Queue,
	openaiSvc *services.OpenAIService,
	geminiSvc *services.GeminiService,
	veoSvc *services.VeoService,
	ffmpegSvc *media.FFmpegService,
	rec *media.Reconciler,
	workDir string,
	imageConcurrency int,
	classifierOpts classifier.Options,
) *Worker {
	if imageConcurrency <= 0 {
		imageConcurrency = 4
	}
	return &Worker{
		manager:          manager,
		queue:            q,
		openai:           openaiSvc,
		gemini:           geminiSvc,
		veo:              veoSvc,
		ffmpeg:           ffmpegSvc,
		rec:              rec,
		workDir:          workDir,
		imageConcurrency: imageConcurrency,
		classifierOpts:   classifierOpts,
	}
}

// Start begins processing jobs from all stage queues. Blocks until the
// context is cancelled.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Printf("Worker started with concurrency: %d", concurrency)

	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx, queue.QueueRecognizeLyrics, w.handleRecognizeLyrics)
		go w.processQueue(ctx, queue.QueueGenerateImages, w.handleGenerateImages)
		go w.processQueue(ctx, queue.QueueRegenerateImage, w.handleRegenerateImage)
		go w.processQueue(ctx, queue.QueueGenerateVideos, w.handleGenerateVideos)
		go w.processQueue(ctx, queue.QueueRegenerateVideo, w.handleRegenerateVideo)
		go w.processQueue(ctx, queue.QueueAnimateImages, w.handleAnimateImages)
		go w.processQueue(ctx, queue.QueueComposeMV, w.handleComposeMV)
	}

	<-ctx.Done()
	log.Println("Worker shutting down...")
}

func (w *Worker) processQueue(ctx context.Context, queueName string, handler func(context.Context, *queue.Job) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			job, err := w.queue.Dequeue(ctx, queueName, 5*time.Second)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("Error dequeuing from %s: %v", queueName, err)
				continue
			}
			if job == nil {
				continue // No job available, retry
			}

			log.Printf("Processing job %s (type: %s, project: %s)", job.ID, job.Type, job.ProjectID)

			if err := handler(ctx, job); err != nil {
				log.Printf("Job %s failed: %v", job.ID, err)
			} else {
				log.Printf("Job %s completed successfully", job.ID)
			}
		}
	}
}
