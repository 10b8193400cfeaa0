package client

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"

	"github.com/ossamaweb/auto-vid/internal/config"
)

// SpeechRequest is one text-to-speech synthesis call.
type SpeechRequest struct {
	Text         string
	VoiceID      string
	Engine       string
	LanguageCode string
	TextType     string
}

// SpeechSynthesizer defines the interface for TTS providers. The returned
// stream is MP3 audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, req SpeechRequest) (io.ReadCloser, error)
}

// PollyClient implements SpeechSynthesizer with Amazon Polly.
type PollyClient struct {
	client *polly.Client
}

func NewPollyClient(ctx context.Context, cfg *config.PollyConfig, storage *config.StorageConfig) (*PollyClient, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg.Region, storage.AccessKeyID, storage.SecretAccessKey)
	if err != nil {
		return nil, err
	}
	return &PollyClient{client: polly.NewFromConfig(awsCfg)}, nil
}

func (c *PollyClient) Synthesize(ctx context.Context, req SpeechRequest) (io.ReadCloser, error) {
	input := &polly.SynthesizeSpeechInput{
		OutputFormat: types.OutputFormatMp3,
		Text:         aws.String(req.Text),
		VoiceId:      types.VoiceId(req.VoiceID),
		Engine:       types.Engine(req.Engine),
		TextType:     types.TextType(req.TextType),
	}
	if req.LanguageCode != "" {
		input.LanguageCode = types.LanguageCode(req.LanguageCode)
	}
	out, err := c.client.SynthesizeSpeech(ctx, input)
	if err != nil {
		return nil, classifyAWS("polly synthesize", err)
	}
	return out.AudioStream, nil
}
