package session

import (
	"errors"

	"github.com/foxseedlab/rockhype/internal/device"
)

const (
	messageReady         = "Ready to rock. Start a session when the band is warmed up."
	messageConnecting    = "Connecting to the hype man..."
	messageListening     = "The hype man is listening! Play something loud."
	messageStopping      = "Wrapping up the session..."
	messageSessionEnded  = "Session ended. Your recording is ready."
	messageRemoteClosed  = "The live voice service closed the session. Start again to keep going."
	messageStartCanceled = "Session start was cancelled."

	messageMicDenied       = "Microphone access was denied. Allow microphone access and start again."
	messageMicMissing      = "No microphone was found. Connect an input device and start again."
	messageSpeakerMissing  = "No speaker output is available. Connect an output device and start again."
	messageStreamFailed    = "Could not reach the live voice service. Check your API key and network, then start again."
	messageStreamLost      = "The connection to the live voice service was lost. Start again to reconnect."
	messageUnexpectedError = "Something went wrong while starting the session. Try again."
)

type startStage int

const (
	stageMicrophone startStage = iota
	stageSpeaker
	stageStream
	stageCapture
)

// startFailure maps an acquisition failure to the state to rest in and the text to show.
// Microphone problems return to Idle; anything later leaves the controller Errored.
func startFailure(stage startStage, err error) (State, string) {
	switch stage {
	case stageMicrophone:
		if errors.Is(err, device.ErrPermissionDenied) {
			return StateIdle, messageMicDenied
		}
		if errors.Is(err, device.ErrDeviceUnavailable) {
			return StateIdle, messageMicMissing
		}
		return StateIdle, messageUnexpectedError
	case stageSpeaker:
		return StateErrored, messageSpeakerMissing
	case stageStream:
		return StateErrored, messageStreamFailed
	case stageCapture:
		if errors.Is(err, device.ErrPermissionDenied) {
			return StateErrored, messageMicDenied
		}
		return StateErrored, messageMicMissing
	default:
		return StateErrored, messageUnexpectedError
	}
}

func endMessage(reason StopReason, err error) (State, string) {
	if err != nil {
		return StateErrored, messageStreamLost
	}
	if reason == StopReasonRemoteClosed {
		return StateIdle, messageRemoteClosed
	}
	return StateIdle, messageSessionEnded
}
