package callcontrol

import (
	"fmt"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// twilioUpdater delivers call updates through the Twilio REST API.
type twilioUpdater struct {
	client *twilio.RestClient
}

// NewTwilioUpdater creates a CallUpdater backed by the Twilio REST client.
func NewTwilioUpdater(accountSID, authToken string) CallUpdater {
	return &twilioUpdater{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
	}
}

func (u *twilioUpdater) UpdateCall(callSid string, twimlDoc string) error {
	params := &openapi.UpdateCallParams{}
	params.SetTwiml(twimlDoc)
	if _, err := u.client.Api.UpdateCall(callSid, params); err != nil {
		return fmt.Errorf("updating call %s: %w", callSid, err)
	}
	return nil
}
