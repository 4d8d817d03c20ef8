package live

import "github.com/foxseedlab/rockhype/internal/live"

type setupMessage struct {
	Setup setup `json:"setup"`
}

type setup struct {
	Model                    string           `json:"model"`
	GenerationConfig         generationConfig `json:"generationConfig"`
	SystemInstruction        *content         `json:"systemInstruction,omitempty"`
	OutputAudioTranscription *struct{}        `json:"outputAudioTranscription,omitempty"`
	InputAudioTranscription  *struct{}        `json:"inputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []blob `json:"mediaChunks"`
}

type serverMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *serverContent `json:"serverContent,omitempty"`
	GoAway        *goAway        `json:"goAway,omitempty"`
}

type serverContent struct {
	ModelTurn           *content       `json:"modelTurn,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

func newSetupMessage(cfg live.SessionConfig) setupMessage {
	s := setup{
		Model: qualifiedModel(cfg.Model),
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
	}
	if cfg.Voice != "" {
		s.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice}},
		}
	}
	if cfg.SystemInstruction != "" {
		s.SystemInstruction = &content{Parts: []part{{Text: cfg.SystemInstruction}}}
	}
	if cfg.OutputTranscription {
		s.OutputAudioTranscription = &struct{}{}
	}
	if cfg.InputTranscription {
		s.InputAudioTranscription = &struct{}{}
	}
	return setupMessage{Setup: s}
}

// toServerMessage reports false for frames that carry nothing the session reacts to.
func (m serverMessage) toServerMessage() (live.ServerMessage, bool) {
	var out live.ServerMessage
	if m.GoAway != nil {
		out.GoAway = true
	}
	if sc := m.ServerContent; sc != nil {
		out.Interrupted = sc.Interrupted
		out.TurnComplete = sc.TurnComplete
		if sc.OutputTranscription != nil {
			out.OutputTranscription = sc.OutputTranscription.Text
		}
		if sc.InputTranscription != nil {
			out.InputTranscription = sc.InputTranscription.Text
		}
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p.InlineData != nil && p.InlineData.Data != "" {
					out.Audio = append(out.Audio, p.InlineData.Data)
				}
			}
		}
	}
	empty := !out.GoAway && !out.Interrupted && !out.TurnComplete &&
		out.OutputTranscription == "" && out.InputTranscription == "" && len(out.Audio) == 0
	return out, !empty
}
