package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Stage queues. Each pipeline stage is dispatched onto its own Redis list so
// triggering calls return immediately; completion is observed through the
// project's status snapshot.
const (
	QueueRecognizeLyrics = "queue:recognize_lyrics"
	QueueGenerateImages  = "queue:generate_images"
	QueueRegenerateImage = "queue:regenerate_image"
	QueueGenerateVideos  = "queue:generate_videos"
	QueueRegenerateVideo = "queue:regenerate_video"
	QueueAnimateImages   = "queue:animate_images"
	QueueComposeMV       = "queue:compose_mv"
)

type Queue struct {
	client *redis.Client
}

type Job struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	ProjectID uuid.UUID `json:"project_id"`

	// Stage payloads
	SegmentIndex int    `json:"segment_index,omitempty"` // regenerate jobs
	Prompt       string `json:"prompt,omitempty"`        // regenerate override prompt
	AllVideo     bool   `json:"all_video,omitempty"`     // generate_videos override mode

	// Composition options
	Transitions        bool    `json:"transitions,omitempty"`
	TransitionType     string  `json:"transition_type,omitempty"`
	TransitionDuration float64 `json:"transition_duration,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Enqueue(ctx context.Context, queueName string, job *Job) error {
	job.CreatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return q.client.RPush(ctx, queueName, data).Err()
}

func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if err == redis.Nil {
		return nil, nil // No job available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

func (q *Queue) GetQueueLength(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, queueName).Result()
}

// EnqueueRecognizeLyrics starts the front half of the pipeline: lyric
// recognition, storyboard, classification and image generation run back to
// back until the image confirmation gate suspends the project.
func (q *Queue) EnqueueRecognizeLyrics(ctx context.Context, projectID uuid.UUID) error {
	return q.Enqueue(ctx, QueueRecognizeLyrics, &Job{
		ID:        uuid.New(),
		Type:      "recognize_lyrics",
		ProjectID: projectID,
	})
}

func (q *Queue) EnqueueGenerateImages(ctx context.Context, projectID uuid.UUID) error {
	return q.Enqueue(ctx, QueueGenerateImages, &Job{
		ID:        uuid.New(),
		Type:      "generate_images",
		ProjectID: projectID,
	})
}

func (q *Queue) EnqueueRegenerateImage(ctx context.Context, projectID uuid.UUID, index int, prompt string) error {
	return q.Enqueue(ctx, QueueRegenerateImage, &Job{
		ID:           uuid.New(),
		Type:         "regenerate_image",
		ProjectID:    projectID,
		SegmentIndex: index,
		Prompt:       prompt,
	})
}

func (q *Queue) EnqueueGenerateVideos(ctx context.Context, projectID uuid.UUID, allVideo bool) error {
	return q.Enqueue(ctx, QueueGenerateVideos, &Job{
		ID:        uuid.New(),
		Type:      "generate_videos",
		ProjectID: projectID,
		AllVideo:  allVideo,
	})
}

func (q *Queue) EnqueueRegenerateVideo(ctx context.Context, projectID uuid.UUID, index int, prompt string) error {
	return q.Enqueue(ctx, QueueRegenerateVideo, &Job{
		ID:           uuid.New(),
		Type:         "regenerate_video",
		ProjectID:    projectID,
		SegmentIndex: index,
		Prompt:       prompt,
	})
}

func (q *Queue) EnqueueAnimateImages(ctx context.Context, projectID uuid.UUID) error {
	return q.Enqueue(ctx, QueueAnimateImages, &Job{
		ID:        uuid.New(),
		Type:      "animate_images",
		ProjectID: projectID,
	})
}

func (q *Queue) EnqueueComposeMV(ctx context.Context, projectID uuid.UUID, transitions bool, transType string, transDur float64) error {
	return q.Enqueue(ctx, QueueComposeMV, &Job{
		ID:                 uuid.New(),
		Type:               "compose_mv",
		ProjectID:          projectID,
		Transitions:        transitions,
		TransitionType:     transType,
		TransitionDuration: transDur,
	})
}
