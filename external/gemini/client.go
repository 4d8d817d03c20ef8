package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/foxseedlab/rockhype/internal/generation"
	"google.golang.org/genai"
)

const (
	videoResolution    = "720p"
	defaultVideoMIME   = "video/mp4"
	downloadTimeout    = 5 * time.Minute
	maxVideoDownloadMB = 512
)

// Client implements generation.Client on top of the Gemini API SDK.
type Client struct {
	genai      *genai.Client
	apiKey     string
	httpClient *http.Client
}

func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Client{
		genai:      gc,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: downloadTimeout},
	}, nil
}

func (c *Client) GenerateImage(ctx context.Context, req generation.ImageRequest) (generation.Blob, error) {
	parts := make([]*genai.Part, 0, 2)
	if req.Source != nil {
		parts = append(parts, genai.NewPartFromBytes(req.Source.Data, req.Source.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))

	var cfg *genai.GenerateContentConfig
	if req.AspectRatio != "" || req.Size != "" {
		cfg = &genai.GenerateContentConfig{
			ImageConfig: &genai.ImageConfig{
				AspectRatio: string(req.AspectRatio),
				ImageSize:   string(req.Size),
			},
		}
	}

	resp, err := c.genai.Models.GenerateContent(ctx, req.Model, []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}, cfg)
	if err != nil {
		return generation.Blob{}, classify(err)
	}
	return imageFromResponse(resp)
}

func (c *Client) AnalyzeAudio(ctx context.Context, req generation.AnalysisRequest) (generation.SongAttributes, error) {
	resp, err := c.genai.Models.GenerateContent(ctx, req.Model, []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(req.Audio.Data, req.Audio.MIMEType),
			genai.NewPartFromText(req.Instruction),
		}, genai.RoleUser),
	}, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   songSchema(),
	})
	if err != nil {
		return generation.SongAttributes{}, classify(err)
	}
	return attributesFromResponse(resp)
}

func songSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":  {Type: genai.TypeString},
			"artist": {Type: genai.TypeString},
			"genre":  {Type: genai.TypeString},
			"lyrics": {Type: genai.TypeString},
		},
		Required: []string{"title", "artist", "genre", "lyrics"},
	}
}

func (c *Client) StartVideo(ctx context.Context, req generation.VideoRequest) (generation.VideoOperation, error) {
	var image *genai.Image
	if req.Seed != nil {
		image = &genai.Image{ImageBytes: req.Seed.Data, MIMEType: req.Seed.MIMEType}
	}
	op, err := c.genai.Models.GenerateVideos(ctx, req.Model, req.Prompt, image, &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		Resolution:     videoResolution,
		AspectRatio:    string(req.AspectRatio),
	})
	if err != nil {
		return generation.VideoOperation{}, classify(err)
	}
	return toVideoOperation(op)
}

func (c *Client) PollVideo(ctx context.Context, op generation.VideoOperation) (generation.VideoOperation, error) {
	latest, err := c.genai.Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: op.Name}, nil)
	if err != nil {
		return op, classify(err)
	}
	return toVideoOperation(latest)
}

// DownloadVideo fetches the finished video; the locator needs the API key as a query parameter.
func (c *Client) DownloadVideo(ctx context.Context, uri string) (generation.Blob, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return generation.Blob{}, fmt.Errorf("invalid video uri: %w", err)
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return generation.Blob{}, fmt.Errorf("failed to build video download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return generation.Blob{}, fmt.Errorf("video download failed: %s", redact(err.Error(), c.apiKey))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return generation.Blob{}, classify(fmt.Errorf("video download returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxVideoDownloadMB<<20))
	if err != nil {
		return generation.Blob{}, fmt.Errorf("failed to read video body: %w", err)
	}
	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" || strings.HasPrefix(mimeType, "application/octet-stream") {
		mimeType = defaultVideoMIME
	}
	return generation.Blob{Data: data, MIMEType: mimeType}, nil
}

func imageFromResponse(resp *genai.GenerateContentResponse) (generation.Blob, error) {
	for _, part := range firstCandidateParts(resp) {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			mimeType := part.InlineData.MIMEType
			if mimeType == "" {
				mimeType = "image/png"
			}
			return generation.Blob{Data: part.InlineData.Data, MIMEType: mimeType}, nil
		}
	}
	return generation.Blob{}, fmt.Errorf("response contained no image")
}

func attributesFromResponse(resp *genai.GenerateContentResponse) (generation.SongAttributes, error) {
	var sb strings.Builder
	for _, part := range firstCandidateParts(resp) {
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		text = "{}"
	}
	var attrs generation.SongAttributes
	if err := json.Unmarshal([]byte(text), &attrs); err != nil {
		return generation.SongAttributes{}, fmt.Errorf("failed to decode song analysis: %w", err)
	}
	return attrs, nil
}

func firstCandidateParts(resp *genai.GenerateContentResponse) []*genai.Part {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	return resp.Candidates[0].Content.Parts
}

func toVideoOperation(op *genai.GenerateVideosOperation) (generation.VideoOperation, error) {
	if op == nil {
		return generation.VideoOperation{}, fmt.Errorf("empty video operation")
	}
	if len(op.Error) > 0 {
		return generation.VideoOperation{}, classify(fmt.Errorf("video operation %s failed: %v", op.Name, op.Error))
	}
	out := generation.VideoOperation{Name: op.Name, Done: op.Done}
	if op.Response != nil && len(op.Response.GeneratedVideos) > 0 {
		if v := op.Response.GeneratedVideos[0].Video; v != nil {
			out.URI = v.URI
		}
	}
	return out, nil
}

func classify(err error) error {
	if generation.IsBillingError(err) {
		return fmt.Errorf("%w: %w", generation.ErrBillingRequired, err)
	}
	return err
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "REDACTED")
}
