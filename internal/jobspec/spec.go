// Package jobspec defines the render job document and turns raw JSON into a
// validated JobSpec with defaults applied.
package jobspec

import (
	"encoding/json"
	"fmt"
)

// JobSpec is a validated render request. After Parse every defaulted pointer
// field is non-nil.
type JobSpec struct {
	Assets          Assets           `json:"assets"`
	BackgroundMusic *BackgroundMusic `json:"backgroundMusic,omitempty"`
	Timeline        []TimelineEvent  `json:"timeline" validate:"dive"`
	Output          Output           `json:"output"`
	Notifications   *Notifications   `json:"notifications,omitempty"`
	Metadata        *Metadata        `json:"metadata,omitempty"`
}

type Assets struct {
	Video Asset   `json:"video"`
	Audio []Asset `json:"audio,omitempty" validate:"unique=ID,dive"`
}

// Asset is a named media source: an s3:// URI, an http(s) URL or a local path.
type Asset struct {
	ID     string `json:"id" validate:"required"`
	Source string `json:"source" validate:"required"`
}

type BackgroundMusic struct {
	Playlist          []string `json:"playlist" validate:"required,min=1,dive,required"`
	Loop              *bool    `json:"loop,omitempty"`
	Volume            *float64 `json:"volume,omitempty" validate:"omitempty,min=0,max=1"`
	CrossfadeDuration *float64 `json:"crossfadeDuration,omitempty" validate:"omitempty,min=0"`
}

type EventType string

const (
	EventTTS   EventType = "tts"
	EventAudio EventType = "audio"
)

// TimelineEvent is a tagged union over EventType. Exactly one of TTS or Audio
// is set, matching Type.
type TimelineEvent struct {
	Start *float64   `json:"start" validate:"required,min=0"`
	Type  EventType  `json:"type" validate:"required,oneof=tts audio"`
	TTS   *TTSData   `json:"-" path:"data"`
	Audio *AudioData `json:"-" path:"data"`
}

// EventData is implemented by the variant payloads only.
type EventData interface {
	eventType() EventType
}

func (*TTSData) eventType() EventType   { return EventTTS }
func (*AudioData) eventType() EventType { return EventAudio }

// Data returns the variant payload, or nil when the event carries none.
func (e TimelineEvent) Data() EventData {
	switch e.Type {
	case EventTTS:
		if e.TTS != nil {
			return e.TTS
		}
	case EventAudio:
		if e.Audio != nil {
			return e.Audio
		}
	}
	return nil
}

type timelineEventJSON struct {
	Start *float64        `json:"start"`
	Type  EventType       `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func (e *TimelineEvent) UnmarshalJSON(b []byte) error {
	var raw timelineEventJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*e = TimelineEvent{Start: raw.Start, Type: raw.Type}
	if len(raw.Data) == 0 || string(raw.Data) == "null" {
		return nil
	}
	// Unknown types keep no payload and are rejected by validation.
	switch raw.Type {
	case EventTTS:
		e.TTS = &TTSData{}
		if err := json.Unmarshal(raw.Data, e.TTS); err != nil {
			return fmt.Errorf("tts data: %w", err)
		}
	case EventAudio:
		e.Audio = &AudioData{}
		if err := json.Unmarshal(raw.Data, e.Audio); err != nil {
			return fmt.Errorf("audio data: %w", err)
		}
	}
	return nil
}

func (e TimelineEvent) MarshalJSON() ([]byte, error) {
	out := timelineEventJSON{Start: e.Start, Type: e.Type}
	if d := e.Data(); d != nil {
		data, err := json.Marshal(d)
		if err != nil {
			return nil, err
		}
		out.Data = data
	}
	return json.Marshal(out)
}

// TTSData is the payload of a tts event.
type TTSData struct {
	Text                string          `json:"text" validate:"required"`
	Provider            string          `json:"provider,omitempty" validate:"omitempty,oneof=aws-polly"`
	ProviderConfig      *ProviderConfig `json:"providerConfig,omitempty"`
	Volume              *float64        `json:"volume,omitempty" validate:"omitempty,min=0,max=1"`
	DuckingLevel        *float64        `json:"duckingLevel,omitempty" validate:"omitempty,min=0,max=1"`
	DuckingFadeDuration *float64        `json:"duckingFadeDuration,omitempty" validate:"omitempty,min=0"`
}

type ProviderConfig struct {
	VoiceID      string `json:"voiceId,omitempty" validate:"omitempty,polly_voice"`
	Engine       string `json:"engine,omitempty" validate:"omitempty,oneof=standard neural long-form generative"`
	LanguageCode string `json:"languageCode,omitempty" validate:"omitempty,polly_language"`
	TextType     string `json:"textType,omitempty" validate:"omitempty,oneof=text ssml"`
}

// AudioData is the payload of an audio event.
type AudioData struct {
	AssetID             string   `json:"assetId" validate:"required"`
	Volume              *float64 `json:"volume,omitempty" validate:"omitempty,min=0,max=1"`
	DuckingLevel        *float64 `json:"duckingLevel,omitempty" validate:"omitempty,min=0,max=1"`
	DuckingFadeDuration *float64 `json:"duckingFadeDuration,omitempty" validate:"omitempty,min=0"`
}

type Output struct {
	Destination string    `json:"destination,omitempty" validate:"omitempty,destination"`
	Filename    string    `json:"filename" validate:"required,filename"`
	Encoding    *Encoding `json:"encoding,omitempty"`
}

type Encoding struct {
	Preset       string   `json:"preset,omitempty" validate:"omitempty,oneof=ultrafast superfast veryfast faster fast medium slow slower veryslow"`
	Bitrate      string   `json:"bitrate,omitempty" validate:"omitempty,bitrate"`
	AudioBitrate string   `json:"audioBitrate,omitempty" validate:"omitempty,bitrate"`
	FPS          *float64 `json:"fps,omitempty" validate:"omitempty,gt=0,max=120"`
}

type Notifications struct {
	Webhook *Webhook `json:"webhook,omitempty"`
}

type Webhook struct {
	URL      string            `json:"url" validate:"required,http_url"`
	Method   string            `json:"method,omitempty" validate:"omitempty,oneof=POST PUT"`
	Headers  map[string]string `json:"headers,omitempty" validate:"omitempty,maxjsonbytes=1024"`
	Metadata map[string]any    `json:"metadata,omitempty" validate:"omitempty,maxjsonbytes=1024"`
}

type Metadata struct {
	ProjectID string   `json:"projectId,omitempty"`
	Title     string   `json:"title,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// AudioAsset looks up a declared audio asset by id.
func (s *JobSpec) AudioAsset(id string) (Asset, bool) {
	for _, a := range s.Assets.Audio {
		if a.ID == id {
			return a, true
		}
	}
	return Asset{}, false
}

// Webhook returns the configured webhook, if any.
func (s *JobSpec) Webhook() *Webhook {
	if s == nil || s.Notifications == nil {
		return nil
	}
	return s.Notifications.Webhook
}
