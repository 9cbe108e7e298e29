package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"whatsapp-automation/internal/apperr"

	"github.com/buger/jsonparser"
	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/time/rate"
)

// Client talks to the Graph API on behalf of one tenant's phone number.
type Client struct {
	baseURL       string
	version       string
	accessToken   string
	phoneNumberID string
	httpClient    *http.Client
	limiter       *rate.Limiter
}

// --- Message Structures ---

type GenericMessage struct {
	MessagingProduct string    `json:"messaging_product"`
	RecipientType    string    `json:"recipient_type,omitempty"`
	To               string    `json:"to"`
	Type             string    `json:"type"`
	Text             *TextObj  `json:"text,omitempty"`
	Image            *MediaObj `json:"image,omitempty"`
	Video            *MediaObj `json:"video,omitempty"`
	Audio            *MediaObj `json:"audio,omitempty"`
	Document         *MediaObj `json:"document,omitempty"`
}

type TextObj struct {
	Body       string `json:"body"`
	PreviewUrl bool   `json:"preview_url,omitempty"`
}

type MediaObj struct {
	ID       string `json:"id,omitempty"`
	Link     string `json:"link,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"` // For documents
}

// --- Helper Functions ---

func (c *Client) endpoint(path string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(c.baseURL, "/"), c.version, strings.TrimLeft(path, "/"))
}

func (c *Client) sendRequest(ctx context.Context, method, url string, body interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(err, goerrors.CategoryExternal, "graph api request failed", map[string]any{
			"method": method,
		})
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		message, _ := jsonparser.GetString(respBody, "error", "message")
		if message == "" {
			message = string(respBody)
		}
		return respBody, apperr.New(fmt.Sprintf("graph api error: %s - %s", resp.Status, message), goerrors.CategoryExternal, map[string]any{
			"status": resp.StatusCode,
		})
	}

	return respBody, nil
}

// SendRawMessage posts msg and returns the provider message id.
func (c *Client) SendRawMessage(ctx context.Context, msg GenericMessage) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	msg.MessagingProduct = "whatsapp"
	if msg.RecipientType == "" {
		msg.RecipientType = "individual"
	}

	resp, err := c.sendRequest(ctx, http.MethodPost, c.endpoint(c.phoneNumberID+"/messages"), msg)
	if err != nil {
		return "", err
	}

	id, err := jsonparser.GetString(resp, "messages", "[0]", "id")
	if err != nil {
		return "", apperr.Wrap(err, goerrors.CategoryExternal, "graph api response has no message id", nil)
	}
	return id, nil
}

func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	return c.SendRawMessage(ctx, GenericMessage{
		To:   to,
		Type: "text",
		Text: &TextObj{Body: body},
	})
}

// SendMedia sends a link-hosted attachment. kind is image, video, audio or document.
func (c *Client) SendMedia(ctx context.Context, to, kind string, media MediaObj) (string, error) {
	msg := GenericMessage{To: to, Type: kind}
	switch kind {
	case "image":
		msg.Image = &media
	case "video":
		msg.Video = &media
	case "audio":
		media.Caption = ""
		msg.Audio = &media
	case "document":
		msg.Document = &media
	default:
		return "", fmt.Errorf("unsupported media kind %q", kind)
	}
	return c.SendRawMessage(ctx, msg)
}

// --- Media Methods ---

// RetrieveMediaURL returns the temporary download URL of an uploaded media object.
func (c *Client) RetrieveMediaURL(ctx context.Context, mediaID string) (string, error) {
	resp, err := c.sendRequest(ctx, http.MethodGet, c.endpoint(mediaID), nil)
	if err != nil {
		return "", err
	}

	mediaURL, err := jsonparser.GetString(resp, "url")
	if err != nil {
		return "", apperr.Wrap(err, goerrors.CategoryExternal, "error resolving media URL", map[string]any{
			"media_id": mediaID,
		})
	}
	return mediaURL, nil
}
