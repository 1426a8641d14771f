package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	DefaultSpeechEndpoint       = "https://speech.googleapis.com"
	DefaultTextToSpeechEndpoint = "https://texttospeech.googleapis.com"
	DefaultVoiceName            = "en-US-Journey-F"
	DefaultLanguage             = "en-US"
)

// GoogleRecognizer calls the Cloud Speech-to-Text v1 recognize endpoint.
type GoogleRecognizer struct {
	client   *http.Client
	endpoint string
}

// NewGoogleRecognizer wraps an already authorized HTTP client.
func NewGoogleRecognizer(client *http.Client, endpoint string) *GoogleRecognizer {
	if client == nil {
		client = http.DefaultClient
	}
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultSpeechEndpoint
	}
	return &GoogleRecognizer{client: client, endpoint: strings.TrimRight(endpoint, "/")}
}

// Encoding reports LINEAR16, the only encoding this client sends.
func (g *GoogleRecognizer) Encoding() string {
	return EncodingLinear16
}

type recognizeBody struct {
	Config struct {
		Encoding                   string `json:"encoding"`
		SampleRateHertz            int    `json:"sampleRateHertz"`
		LanguageCode               string `json:"languageCode"`
		EnableAutomaticPunctuation bool   `json:"enableAutomaticPunctuation"`
		Model                      string `json:"model"`
		UseEnhanced                bool   `json:"useEnhanced"`
	} `json:"config"`
	Audio struct {
		Content []byte `json:"content"`
	} `json:"audio"`
}

type recognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"results"`
}

// Recognize posts the audio inline and returns the top alternative of each result.
func (g *GoogleRecognizer) Recognize(ctx context.Context, req RecognitionRequest) ([]Segment, error) {
	var body recognizeBody
	body.Config.Encoding = req.Encoding
	body.Config.SampleRateHertz = req.SampleRate
	body.Config.LanguageCode = languageOrDefault(req.Language)
	body.Config.EnableAutomaticPunctuation = true
	body.Config.Model = "video"
	body.Config.UseEnhanced = true
	body.Audio.Content = req.Audio

	var resp recognizeResponse
	if err := postJSON(ctx, g.client, g.endpoint+"/v1/speech:recognize", body, &resp); err != nil {
		return nil, fmt.Errorf("speech recognize: %w", err)
	}

	segments := make([]Segment, 0, len(resp.Results))
	for _, result := range resp.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		best := result.Alternatives[0]
		segments = append(segments, Segment{Text: best.Transcript, Confidence: best.Confidence})
	}
	return segments, nil
}

// GoogleSynthesizer calls the Cloud Text-to-Speech v1 synthesize endpoint.
type GoogleSynthesizer struct {
	client   *http.Client
	endpoint string
}

// NewGoogleSynthesizer wraps an already authorized HTTP client.
func NewGoogleSynthesizer(client *http.Client, endpoint string) *GoogleSynthesizer {
	if client == nil {
		client = http.DefaultClient
	}
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultTextToSpeechEndpoint
	}
	return &GoogleSynthesizer{client: client, endpoint: strings.TrimRight(endpoint, "/")}
}

type synthesizeBody struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name,omitempty"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string  `json:"audioEncoding"`
		SpeakingRate  float64 `json:"speakingRate"`
		Pitch         float64 `json:"pitch"`
	} `json:"audioConfig"`
}

type synthesizeResponse struct {
	AudioContent []byte `json:"audioContent"`
}

// Synthesize returns the LINEAR16 payload, which the service wraps in a WAV header.
func (g *GoogleSynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error) {
	var body synthesizeBody
	body.Input.Text = req.Text
	body.Voice.LanguageCode = languageOrDefault(req.Language)
	body.Voice.Name = req.VoiceName
	body.AudioConfig.AudioEncoding = req.Encoding
	body.AudioConfig.SpeakingRate = 1.0
	body.AudioConfig.Pitch = 0

	var resp synthesizeResponse
	if err := postJSON(ctx, g.client, g.endpoint+"/v1/text:synthesize", body, &resp); err != nil {
		return nil, fmt.Errorf("text synthesize: %w", err)
	}
	if len(resp.AudioContent) == 0 {
		return nil, fmt.Errorf("text synthesize: response has no audio content")
	}
	return resp.AudioContent, nil
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// postJSON sends payload and decodes a 2xx JSON response into out.
func postJSON(ctx context.Context, client *http.Client, url string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var apiErr apiErrorBody
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("http %d %s: %s", resp.StatusCode, apiErr.Error.Status, apiErr.Error.Message)
		}
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func languageOrDefault(lang string) string {
	if strings.TrimSpace(lang) == "" {
		return DefaultLanguage
	}
	return lang
}
