package media

import (
	"fmt"
	"strings"
)

// Profile describes the transport profile of an SDP offer. It is the
// typed descriptor the negotiation adapter operates on instead of
// re-inspecting SDP strings at every step.
type Profile struct {
	// Secure is true when the offer uses an encrypted RTP profile
	// (SAVP/SAVPF family) or carries SDES/DTLS keying attributes.
	Secure bool

	// ICE is true when the offer carries ICE attributes (ufrag/pwd
	// or candidates).
	ICE bool
}

// WebRTC reports whether the profile looks like a browser offer:
// encrypted media negotiated over ICE.
func (p Profile) WebRTC() bool {
	return p.Secure && p.ICE
}

// secureProtos are the m= line transport protos that imply SRTP.
var secureProtos = map[string]bool{
	"RTP/SAVP":         true,
	"RTP/SAVPF":        true,
	"UDP/TLS/RTP/SAVP": true,
	// Browser offers use the feedback-enabled variant.
	"UDP/TLS/RTP/SAVPF": true,
}

// DetectProfile inspects an SDP offer and returns its transport profile.
// The body must contain at least one m= line to be considered an offer.
func DetectProfile(offer []byte) (Profile, error) {
	text := strings.ReplaceAll(string(offer), "\r\n", "\n")
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")

	var p Profile
	sawMedia := false

	for _, line := range lines {
		if len(line) < 2 || line[1] != '=' {
			continue
		}

		switch line[0] {
		case 'm':
			// m=<media> <port> <proto> <fmt> ...
			fields := strings.Fields(line[2:])
			if len(fields) < 3 {
				return Profile{}, fmt.Errorf("malformed media line %q", line)
			}
			sawMedia = true
			if secureProtos[fields[2]] {
				p.Secure = true
			}

		case 'a':
			attr := line[2:]
			switch {
			case strings.HasPrefix(attr, "crypto:"),
				strings.HasPrefix(attr, "fingerprint:"):
				p.Secure = true
			case strings.HasPrefix(attr, "ice-ufrag:"),
				strings.HasPrefix(attr, "ice-pwd:"),
				strings.HasPrefix(attr, "candidate:"):
				p.ICE = true
			}
		}
	}

	if !sawMedia {
		return Profile{}, fmt.Errorf("no media description in offer")
	}
	return p, nil
}
