// Package prompts provides embedded default system audio prompts.
// These are G.711 u-law WAV files (8kHz, mono, 8-bit) suitable for
// direct RTP playback without transcoding.
//
// The embedded prompts are extracted to the data directory on first
// boot so the media server can play them by path. They back the IVR
// dialog when speech synthesis is unavailable.
package prompts

import "embed"

// SystemFS holds the default system audio prompts embedded in the binary.
// Files are under system/ (e.g. system/ivr_invalid_option.wav).
//
//go:embed system/*.wav
var SystemFS embed.FS

// SystemPrompts lists the filenames of all default system prompts.
// These are extracted to $DATA_DIR/prompts/system/ on first boot.
var SystemPrompts = []string{
	"ivr_invalid_option.wav",
	"ivr_goodbye.wav",
	"prompt_fallback.wav",
	"transfer_unavailable.wav",
}
