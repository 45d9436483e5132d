package callcontrol

import (
	"strconv"

	"github.com/twilio/twilio-go/twiml"
)

// buildReply composes the TwiML document spoken on a call update. With
// restart the stream reconnects for the caller's next turn, otherwise the
// call hangs up after the reply.
func (r *Responder) buildReply(message, voice string, restart bool) (string, error) {
	verbs := []twiml.Element{
		&twiml.VoiceSay{
			Message:  message,
			Voice:    voice,
			Language: r.cfg.Language,
		},
	}

	if r.cfg.PauseSecs > 0 {
		verbs = append(verbs, &twiml.VoicePause{
			Length: strconv.Itoa(r.cfg.PauseSecs),
		})
	}

	if restart && r.cfg.StreamURL != "" {
		verbs = append(verbs, &twiml.VoiceConnect{
			InnerElements: []twiml.Element{
				&twiml.VoiceStream{Url: r.cfg.StreamURL},
			},
		})
	} else {
		verbs = append(verbs, &twiml.VoiceHangup{})
	}

	return twiml.Voice(verbs)
}

// Answer builds the document returned from the inbound-call webhook: an
// optional greeting followed by a stream connect to the media endpoint.
func (r *Responder) Answer() (string, error) {
	var verbs []twiml.Element
	if r.cfg.Greeting != "" {
		verbs = append(verbs, &twiml.VoiceSay{
			Message:  r.cfg.Greeting,
			Voice:    r.primaryVoice(),
			Language: r.cfg.Language,
		})
	}
	verbs = append(verbs, &twiml.VoiceConnect{
		InnerElements: []twiml.Element{
			&twiml.VoiceStream{Url: r.cfg.StreamURL},
		},
	})
	return twiml.Voice(verbs)
}

func (r *Responder) primaryVoice() string {
	if len(r.cfg.Voices) > 0 {
		return r.cfg.Voices[0]
	}
	return ""
}
