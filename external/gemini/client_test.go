package gemini

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/foxseedlab/rockhype/internal/generation"
	"google.golang.org/genai"
)

func TestDownloadVideo_AppendsKey(t *testing.T) {
	var gotKey, gotAlt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		gotAlt = r.URL.Query().Get("alt")
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("mp4-bytes"))
	}))
	defer srv.Close()

	c := &Client{apiKey: "secret", httpClient: srv.Client()}
	blob, err := c.DownloadVideo(context.Background(), srv.URL+"/files/v1:download?alt=media")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotKey != "secret" || gotAlt != "media" {
		t.Fatalf("unexpected query: key=%q alt=%q", gotKey, gotAlt)
	}
	if string(blob.Data) != "mp4-bytes" || blob.MIMEType != "video/mp4" {
		t.Fatalf("unexpected blob: %+v", blob)
	}
}

func TestDownloadVideo_BillingStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"status":"PERMISSION_DENIED","message":"billing required"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	c := &Client{apiKey: "secret", httpClient: srv.Client()}
	_, err := c.DownloadVideo(context.Background(), srv.URL+"/v.mp4")
	if !errors.Is(err, generation.ErrBillingRequired) {
		t.Fatalf("expected billing error, got %v", err)
	}
}

func TestImageFromResponse_FirstInlinePart(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "here is your cover"},
				{InlineData: &genai.Blob{Data: []byte("png"), MIMEType: "image/png"}},
			}},
		}},
	}
	blob, err := imageFromResponse(resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(blob.Data) != "png" || blob.MIMEType != "image/png" {
		t.Fatalf("unexpected blob: %+v", blob)
	}

	if _, err := imageFromResponse(&genai.GenerateContentResponse{}); err == nil {
		t.Fatal("expected error for empty response")
	}
}

func TestAttributesFromResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: `{"title":"Thunder","artist":"Band",`},
				{Text: `"genre":"Hard Rock","lyrics":"la la"}`},
			}},
		}},
	}
	attrs, err := attributesFromResponse(resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attrs.Title != "Thunder" || attrs.Genre != "Hard Rock" {
		t.Fatalf("unexpected attributes: %+v", attrs)
	}
}

func TestToVideoOperation(t *testing.T) {
	op, err := toVideoOperation(&genai.GenerateVideosOperation{
		Name: "operations/1",
		Done: true,
		Response: &genai.GenerateVideosResponse{
			GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{URI: "https://x/v"}}},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !op.Done || op.URI != "https://x/v" {
		t.Fatalf("unexpected operation: %+v", op)
	}
}
