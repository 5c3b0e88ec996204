package line

// TextMessage is the only message type the bot sends.
type TextMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// PushRequest is the body of POST /v2/bot/message/push.
type PushRequest struct {
	To       string        `json:"to"`
	Messages []TextMessage `json:"messages"`
}

// Profile is returned by GET /v2/profile for a user access token.
type Profile struct {
	UserID        string `json:"userId"`
	DisplayName   string `json:"displayName,omitempty"`
	PictureURL    string `json:"pictureUrl,omitempty"`
	StatusMessage string `json:"statusMessage,omitempty"`
}

// IDTokenClaims is the subset of POST /oauth2/v2.1/verify we read.
type IDTokenClaims struct {
	Issuer   string `json:"iss,omitempty"`
	Subject  string `json:"sub"`
	Audience string `json:"aud,omitempty"`
	Expires  int64  `json:"exp,omitempty"`
	Name     string `json:"name,omitempty"`
}

type apiError struct {
	Message          string `json:"message,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func (e apiError) text() string {
	switch {
	case e.ErrorDescription != "":
		return e.ErrorDescription
	case e.Error != "":
		return e.Error
	default:
		return e.Message
	}
}
