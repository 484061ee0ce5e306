package tts

import (
	"context"
	"log/slog"

	"github.com/ashwinrayaprolu/web-communication-platform/internal/signaling"
)

// Speaker plays spoken prompts on a media endpoint, synthesizing with
// TTS first and degrading to a configured fallback recording when
// synthesis or playback fails. With no fallback configured a failed
// prompt is skipped silently; a prompt never fails the call.
type Speaker struct {
	synth    Synthesizer
	fallback string
	logger   *slog.Logger
}

// NewSpeaker creates a Speaker. fallback may be empty, which disables
// fallback audio.
func NewSpeaker(synth Synthesizer, fallback string, logger *slog.Logger) *Speaker {
	return &Speaker{
		synth:    synth,
		fallback: fallback,
		logger:   logger.With("subsystem", "speaker"),
	}
}

// Speak renders text and plays it on the endpoint.
func (s *Speaker) Speak(ctx context.Context, ep signaling.Endpoint, text string) {
	resource, err := s.synth.Synthesize(ctx, text)
	if err == nil {
		if playErr := ep.Play(ctx, resource); playErr == nil {
			return
		} else {
			err = playErr
		}
	}

	s.logger.Warn("prompt playback failed",
		"leg", ep.ID(),
		"error", err,
	)

	if s.fallback == "" {
		// Skip the prompt; the dialog continues without it.
		return
	}
	if err := ep.Play(ctx, s.fallback); err != nil {
		s.logger.Warn("fallback playback failed",
			"leg", ep.ID(),
			"error", err,
		)
	}
}

// PlayFile plays a pre-rendered resource directly, with the same
// degrade-to-fallback behavior as Speak.
func (s *Speaker) PlayFile(ctx context.Context, ep signaling.Endpoint, resource string) {
	if err := ep.Play(ctx, resource); err == nil {
		return
	}
	if s.fallback != "" {
		if err := ep.Play(ctx, s.fallback); err != nil {
			s.logger.Warn("fallback playback failed", "leg", ep.ID(), "error", err)
		}
	}
}
