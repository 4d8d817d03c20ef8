package discord

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	discordpkg "github.com/foxseedlab/rockhype/internal/discord"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	s, err := discordgo.New("Bot test-token")
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	s.Client = &http.Client{Transport: rt}
	return &Client{session: s, channelID: "chan-1"}
}

func okMessage() *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Body:       io.NopCloser(strings.NewReader(`{"id":"m1","channel_id":"chan-1","content":""}`)),
		Header:     make(http.Header),
	}
}

func TestSendMessage_SplitsLongContent(t *testing.T) {
	var bodies []string
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if !strings.HasSuffix(req.URL.Path, "/channels/chan-1/messages") {
			t.Fatalf("unexpected request path: %s", req.URL.Path)
		}
		b, _ := io.ReadAll(req.Body)
		bodies = append(bodies, string(b))
		return okMessage(), nil
	})

	long := strings.Repeat("a", 1500) + "\n" + strings.Repeat("b", 1500)
	if err := c.SendMessage(context.Background(), long); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bodies) != 2 {
		t.Fatalf("expected two messages, got %d", len(bodies))
	}
}

func TestSendFile_UploadsMultipart(t *testing.T) {
	var filename, fileBody string
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		mediaType, params, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
		if err != nil || mediaType != "multipart/form-data" {
			t.Fatalf("unexpected content type: %q", req.Header.Get("Content-Type"))
		}
		mr := multipart.NewReader(req.Body, params["boundary"])
		for {
			p, err := mr.NextPart()
			if err != nil {
				break
			}
			if p.FileName() != "" {
				filename = p.FileName()
				b, _ := io.ReadAll(p)
				fileBody = string(b)
			}
		}
		return okMessage(), nil
	})

	err := c.SendFile(context.Background(), discordpkg.FileMessage{
		Content:     "New album cover!",
		Filename:    "album.png",
		ContentType: "image/png",
		FileBody:    []byte("png-bytes"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filename != "album.png" || fileBody != "png-bytes" {
		t.Fatalf("unexpected upload: %q %q", filename, fileBody)
	}
}

func TestSendMessage_ReturnsRESTError(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusForbidden,
			Status:     "403 Forbidden",
			Body:       io.NopCloser(strings.NewReader(`{"message":"Missing Access","code":50001}`)),
			Header:     make(http.Header),
		}, nil
	})
	if err := c.SendMessage(context.Background(), "hi"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSplitMessage(t *testing.T) {
	if got := splitMessage("", 10); len(got) != 0 {
		t.Fatalf("expected no parts, got %v", got)
	}
	got := splitMessage("aaaaaaa\nbbbbbbbb", 10)
	if len(got) != 2 || got[0] != "aaaaaaa\n" || got[1] != "bbbbbbbb" {
		t.Fatalf("unexpected split: %q", got)
	}
	got = splitMessage(strings.Repeat("x", 25), 10)
	if len(got) != 3 || len(got[2]) != 5 {
		t.Fatalf("unexpected hard split: %q", got)
	}
}
