package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/renlei/mvstudio/internal/models"
)

const geminiImageModel = "gemini-3-pro-image-preview"

// GeminiService generates the still keyframe for each storyboard scene.
// An optional style reference image keeps every scene in the same visual
// world; without one, the composed prompt carries the style alone.
type GeminiService struct {
	apiKey             string
	styleReferencePath string
	client             *http.Client

	// Style reference is loaded once and shared across parallel scene calls.
	styleMu         sync.Mutex
	styleImageCache []byte
	styleMimeType   string
}

func NewGeminiService(apiKey, styleReferencePath string) *GeminiService {
	return &GeminiService{
		apiKey:             apiKey,
		styleReferencePath: styleReferencePath,
		client:             &http.Client{Timeout: 300 * time.Second},
	}
}

// Gemini API request/response structures
type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string           `json:"responseModalities,omitempty"`
	ImageConfig        *geminiImageConfig `json:"imageConfig,omitempty"`
}

type geminiImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateSceneImage generates the keyframe for one storyboard scene. Each
// call is independent — safe for parallel execution across segments.
func (s *GeminiService) GenerateSceneImage(ctx context.Context, scene models.StoryboardScene) ([]byte, error) {
	promptText := composeSceneImagePrompt(scene)

	parts := []geminiPart{{Text: promptText}}

	styleData, mimeType, err := s.loadStyleReferenceImage()
	if err == nil {
		parts = append(parts, geminiPart{
			InlineData: &geminiInlineData{
				MimeType: mimeType,
				Data:     base64.StdEncoding.EncodeToString(styleData),
			},
		})
	} else if s.styleReferencePath != "" {
		log.Printf("[Gemini] WARNING: could not load style reference image: %v (proceeding without)", err)
	}

	reqBody := geminiGenerateContentRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: parts},
		},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
			ImageConfig: &geminiImageConfig{
				AspectRatio: "16:9",
				ImageSize:   "2K",
			},
		},
	}

	return s.doGenerateContent(ctx, reqBody)
}

func (s *GeminiService) loadStyleReferenceImage() ([]byte, string, error) {
	s.styleMu.Lock()
	defer s.styleMu.Unlock()

	if s.styleImageCache != nil {
		return s.styleImageCache, s.styleMimeType, nil
	}
	if s.styleReferencePath == "" {
		return nil, "", fmt.Errorf("no style reference configured")
	}

	data, err := os.ReadFile(s.styleReferencePath)
	if err != nil {
		return nil, "", fmt.Errorf("could not load style reference from %s: %w", s.styleReferencePath, err)
	}

	mimeType := "image/jpeg"
	if filepath.Ext(s.styleReferencePath) == ".png" {
		mimeType = "image/png"
	}

	s.styleImageCache = data
	s.styleMimeType = mimeType

	log.Printf("[Gemini] Loaded style reference image from %s (%d bytes)", s.styleReferencePath, len(data))
	return data, mimeType, nil
}

func (s *GeminiService) doGenerateContent(ctx context.Context, reqBody geminiGenerateContentRequest) ([]byte, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s", geminiImageModel, s.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var geminiResp geminiGenerateContentResponse
	if err := json.Unmarshal(bodyBytes, &geminiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(geminiResp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	var textParts []string
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		if part.InlineData != nil && part.InlineData.Data != "" {
			imageData, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to decode base64 image: %w", err)
			}
			return imageData, nil
		}
		if part.Text != "" {
			textParts = append(textParts, part.Text)
		}
	}

	if len(textParts) > 0 {
		return nil, fmt.Errorf("gemini returned text instead of image: %s", truncateString(textParts[0], 200))
	}
	return nil, fmt.Errorf("no image data found in response (got %d parts, none with inlineData)", len(geminiResp.Candidates[0].Content.Parts))
}

// composeSceneImagePrompt wraps the storyboard prompt with framing and style
// instructions. The text prompt is self-contained per scene; cross-scene
// consistency comes from the storyboard itself plus the style reference.
func composeSceneImagePrompt(scene models.StoryboardScene) string {
	var prompt bytes.Buffer

	prompt.WriteString("STYLE REFERENCE: If a reference image is attached, copy ONLY its artistic style, lighting, color palette, and realism. Do NOT copy the subject or scene from the reference.\n\n")

	prompt.WriteString("SCENE TO DEPICT:\n")
	prompt.WriteString(scene.Prompt)

	if scene.SceneType != "" {
		prompt.WriteString(fmt.Sprintf("\n\nScene type: %s.", scene.SceneType))
	}
	if !scene.HasCharacter {
		prompt.WriteString("\nNo people or characters in this frame.")
	}

	prompt.WriteString("\n\nOutput: Landscape 16:9, cinematic music video frame, highest quality. No text, captions, or watermarks.")

	return prompt.String()
}
