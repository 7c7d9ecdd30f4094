package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/renlei/mvstudio/internal/lyrics"
	"github.com/renlei/mvstudio/internal/models"
)

const storyboardModel = "gpt-5-mini"

type OpenAIService struct {
	client *openai.Client
}

func NewOpenAIService(apiKey string) *OpenAIService {
	return &OpenAIService{
		client: openai.NewClient(apiKey),
	}
}

// ---------------------------------------------------------------------------
// Whisper Transcription — segment-level timestamps for lyric recognition
// ---------------------------------------------------------------------------

// TranscribeLyrics sends the song to Whisper and returns time-coded lyric
// segments. This is the recognition path for projects created without an LRC
// file. Whisper segments map 1:1 onto lyric lines; Finalize closes the end
// times and assigns contiguous indices.
func (s *OpenAIService) TranscribeLyrics(ctx context.Context, audioPath string, audioDuration float64) ([]models.LyricSegment, error) {
	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularitySegment,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("whisper transcription failed: %w", err)
	}

	if len(resp.Segments) == 0 {
		return nil, fmt.Errorf("whisper returned no segments (text: %q)", truncateString(resp.Text, 120))
	}

	segs := make([]models.LyricSegment, 0, len(resp.Segments))
	for _, ws := range resp.Segments {
		text := strings.TrimSpace(ws.Text)
		segs = append(segs, models.LyricSegment{
			Text:        text,
			StartTime:   ws.Start,
			EndTime:     ws.End,
			SpecialType: lyrics.DetectSpecial(text),
		})
	}

	if audioDuration <= 0 {
		audioDuration = resp.Duration
	}
	segs = lyrics.Finalize(segs, audioDuration)

	log.Printf("[Whisper] Transcribed %d lyric segments (duration: %.1fs, text: %q)",
		len(segs), resp.Duration, truncateString(resp.Text, 80))

	return segs, nil
}

// ---------------------------------------------------------------------------
// Storyboard Generation — one visual scene per lyric segment
// ---------------------------------------------------------------------------

// storyboardResponse is the JSON envelope the model is asked to produce.
type storyboardResponse struct {
	Scenes []storyboardScene `json:"scenes"`
}

type storyboardScene struct {
	SegmentIndex int    `json:"segment_index"`
	ImagePrompt  string `json:"image_prompt"`
	SceneType    string `json:"scene_type"`
	HasCharacter bool   `json:"has_character"`
}

// GenerateStoryboard asks the model for one image prompt per lyric segment,
// using JSON mode. The response must cover every segment index exactly once;
// a scene pointing at an unknown segment fails the whole call rather than
// silently misaligning prompts with lyrics.
func (s *OpenAIService) GenerateStoryboard(ctx context.Context, title string, segments []models.LyricSegment) ([]models.StoryboardScene, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("no lyric segments to storyboard")
	}

	systemPrompt := buildStoryboardSystemPrompt()
	userPrompt := buildStoryboardUserPrompt(title, segments)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: storyboardModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 1.0,
	})
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from openai")
	}

	rawContent := resp.Choices[0].Message.Content
	const maxLogLen = 2000

	var parsed storyboardResponse
	if err := json.Unmarshal([]byte(rawContent), &parsed); err != nil {
		log.Printf("[OpenAI storyboard] parse failed: %v", err)
		log.Printf("[OpenAI storyboard] raw response: %s", truncateString(rawContent, maxLogLen))
		return nil, fmt.Errorf("failed to parse storyboard: %w", err)
	}

	if len(parsed.Scenes) == 0 {
		log.Printf("[OpenAI storyboard] raw response: %s", truncateString(rawContent, maxLogLen))
		return nil, fmt.Errorf("storyboard has no scenes")
	}

	// Map scenes back onto segments by index; every segment must be covered.
	known := make(map[int]bool, len(segments))
	for _, seg := range segments {
		known[seg.Index] = true
	}

	byIndex := make(map[int]models.StoryboardScene, len(parsed.Scenes))
	for _, sc := range parsed.Scenes {
		if !known[sc.SegmentIndex] {
			return nil, fmt.Errorf("storyboard references unknown segment index %d", sc.SegmentIndex)
		}
		if strings.TrimSpace(sc.ImagePrompt) == "" {
			return nil, fmt.Errorf("storyboard scene for segment %d has an empty image prompt", sc.SegmentIndex)
		}
		byIndex[sc.SegmentIndex] = models.StoryboardScene{
			Index:        sc.SegmentIndex,
			Prompt:       strings.TrimSpace(sc.ImagePrompt),
			SceneType:    sc.SceneType,
			HasCharacter: sc.HasCharacter,
		}
	}

	scenes := make([]models.StoryboardScene, 0, len(segments))
	var missing []int
	for _, seg := range segments {
		sc, ok := byIndex[seg.Index]
		if !ok {
			missing = append(missing, seg.Index)
			continue
		}
		scenes = append(scenes, sc)
	}
	if len(missing) > 0 {
		log.Printf("[OpenAI storyboard] raw response: %s", truncateString(rawContent, maxLogLen))
		return nil, fmt.Errorf("storyboard missing scenes for segments %v", missing)
	}

	log.Printf("[OpenAI storyboard] storyboard generated: %d scenes for %q", len(scenes), title)

	return scenes, nil
}

func buildStoryboardSystemPrompt() string {
	return strings.TrimSpace(`
You are a music video director. You receive the lyrics of a song as
time-coded segments and produce one visual scene per segment.

Respond with JSON only, in this exact shape:
{
  "scenes": [
    {
      "segment_index": 1,
      "image_prompt": "detailed text-to-image prompt for this scene",
      "scene_type": "performance | narrative | abstract | landscape",
      "has_character": true
    }
  ]
}

Rules:
- Produce exactly one scene per segment, keyed by segment_index.
- Keep a consistent visual world across the whole video: recurring
  characters, palette and setting should carry between scenes.
- image_prompt must be self-contained (the image model sees one prompt
  at a time) and describe a single cinematic 16:9 frame.
- Instrumental sections (marked special) get atmospheric scenes without
  lyrics-driven action.
- Do not mention text, captions or subtitles in any prompt.
`)
}

func buildStoryboardUserPrompt(title string, segments []models.LyricSegment) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Song title: %s\n\nSegments:\n", title)
	for _, seg := range segments {
		marker := ""
		if seg.IsSpecial() {
			marker = fmt.Sprintf(" [special: %s]", seg.SpecialType)
		}
		text := seg.Text
		if strings.TrimSpace(text) == "" {
			text = "(instrumental)"
		}
		fmt.Fprintf(&sb, "%d. [%.1fs - %.1fs]%s %s\n", seg.Index, seg.StartTime, seg.EndTime, marker, text)
	}
	return sb.String()
}

// truncateString truncates a string to maxLen and appends "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
