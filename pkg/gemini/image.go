package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultImageModel generates images.
const DefaultImageModel = "gemini-2.5-flash-image"

// MessageNoImage is shown when the model answered without an image.
const MessageNoImage = "No image generated"

// ErrNoImage is returned when the response carries no inline image.
var ErrNoImage = errors.New("gemini: no image generated")

// AspectRatio of a generated image.
type AspectRatio string

const (
	AspectSquare    AspectRatio = "1:1"
	AspectLandscape AspectRatio = "16:9"
	AspectPortrait  AspectRatio = "9:16"
)

// ParseAspectRatio accepts "1:1", "16:9" and "9:16". Empty selects
// AspectSquare.
func ParseAspectRatio(s string) (AspectRatio, error) {
	switch a := AspectRatio(strings.TrimSpace(s)); a {
	case "":
		return AspectSquare, nil
	case AspectSquare, AspectLandscape, AspectPortrait:
		return a, nil
	}
	return "", fmt.Errorf("gemini: unsupported aspect ratio %q", s)
}

// Image is a generated image.
type Image struct {
	MIMEType string
	Data     []byte
}

// DataURI returns the image as a data URI.
func (img *Image) DataURI() string {
	return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// Ext returns a file extension for the image type, including the dot.
func (img *Image) Ext() string {
	switch img.MIMEType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}

// ParseDataURI splits a base64 data URI into its MIME type and payload. A
// bare base64 string is accepted with an empty MIME type.
func ParseDataURI(s string) (string, []byte, error) {
	var mimeType string
	payload := s
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		meta, data, found := strings.Cut(rest, ",")
		if !found {
			return "", nil, errors.New("gemini: malformed data uri")
		}
		meta, isBase64 := strings.CutSuffix(meta, ";base64")
		if !isBase64 {
			return "", nil, errors.New("gemini: data uri is not base64")
		}
		mimeType = meta
		payload = data
	}
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("gemini: decode data uri: %w", err)
	}
	return mimeType, b, nil
}

// GenerateImage renders prompt with the image model.
func (c *Client) GenerateImage(ctx context.Context, prompt string, aspect AspectRatio) (*Image, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, errors.New("gemini: image: empty prompt")
	}
	aspect, err := ParseAspectRatio(string(aspect))
	if err != nil {
		return nil, err
	}
	gc, err := c.GenAI(ctx)
	if err != nil {
		return nil, err
	}

	cfg := &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{AspectRatio: string(aspect)},
	}
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := gc.Models.GenerateContent(ctx, c.imageModel, contents, cfg)
	if err != nil {
		return nil, classify("image", err)
	}
	return firstImage(resp)
}

func firstImage(resp *genai.GenerateContentResponse) (*Image, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrNoImage
	}
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && p.InlineData != nil && len(p.InlineData.Data) > 0 {
			return &Image{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data}, nil
		}
	}
	return nil, ErrNoImage
}
