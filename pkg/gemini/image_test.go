package gemini

import (
	"context"
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAspectRatio(t *testing.T) {
	for in, want := range map[string]AspectRatio{
		"":     AspectSquare,
		"1:1":  AspectSquare,
		"16:9": AspectLandscape,
		"9:16": AspectPortrait,
	} {
		got, err := ParseAspectRatio(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, bad := range []string{"4:3", "square", "21:9"} {
		_, err := ParseAspectRatio(bad)
		assert.Error(t, err, bad)
	}
}

func TestGenerateImage(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	cs := newContentServer(t, http.StatusOK, map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{"role": "model", "parts": []any{
				map[string]any{"text": "Here you go"},
				map[string]any{"inlineData": map[string]any{
					"mimeType": "image/png",
					"data":     base64.StdEncoding.EncodeToString(png),
				}},
			}},
		}},
	})
	c := newTestClient(t, cs.URL)

	img, err := c.GenerateImage(context.Background(), "a red fox", AspectLandscape)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, png, img.Data)
	assert.Equal(t, ".png", img.Ext())
	assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(png), img.DataURI())

	path, body := cs.last()
	assert.Equal(t, "/v1beta/models/"+DefaultImageModel+":generateContent", path)
	assert.Equal(t, "a red fox", dig(body, "contents", 0, "parts", 0, "text"))
	assert.Equal(t, "16:9", dig(body, "generationConfig", "imageConfig", "aspectRatio"))
}

func TestGenerateImage_NoImage(t *testing.T) {
	cs := newContentServer(t, http.StatusOK, textResponse("I can't draw that."))
	c := newTestClient(t, cs.URL)

	_, err := c.GenerateImage(context.Background(), "something", "")
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestGenerateImage_Validation(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	_, err := c.GenerateImage(context.Background(), "  ", AspectSquare)
	assert.Error(t, err)
	_, err = c.GenerateImage(context.Background(), "fox", "4:3")
	assert.Error(t, err)
}

func TestParseDataURI(t *testing.T) {
	mimeType, data, err := ParseDataURI("data:image/jpeg;base64,AQID")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mimeType)
	assert.Equal(t, []byte{1, 2, 3}, data)

	mimeType, data, err = ParseDataURI("AQID")
	require.NoError(t, err)
	assert.Empty(t, mimeType)
	assert.Equal(t, []byte{1, 2, 3}, data)

	for _, bad := range []string{"data:image/png,AQID", "data:image/png;base64", "data:image/png;base64,***"} {
		_, _, err := ParseDataURI(bad)
		assert.Error(t, err, bad)
	}
}
