// Package gemini connects Nova to the Gemini API.
//
// Client implements voice.Client over two live transports: a direct
// BidiGenerateContent websocket (TransportWebSocket) and the genai SDK live
// session (TransportSDK). Both deliver voice.ServerMessage values in arrival
// order and map close frames and API failures onto *Error.
//
// The same client serves text chat with optional Google Search grounding and
// JSON-schema structured replies (Chat), and image generation
// (GenerateImage).
//
//	c, err := gemini.NewClient(gemini.APIKeyFromEnv())
//	if err != nil {
//		return err // voice.IsMissingCredential(err)
//	}
//	reply, err := c.Chat(ctx, messages, gemini.ChatOptions{UseSearch: true})
package gemini
