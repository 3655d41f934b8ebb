// Package twiliolike is the concrete voice.Port adapter (component C6).
// No example repo in the pack ships a telephony client, so this is grounded
// on the general outbound-HTTP-port shape used throughout the pack (a
// small typed request builder over net/http with context-aware timeouts)
// rather than a specific library, per SPEC_FULL.md §4.5/§4.6. It renders the
// ordered speak/gather/hangup instruction list (spec §6) into TwiML-shaped
// XML and posts a call-creation request the way Twilio's REST API expects.
package twiliolike

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antonmal/protectogram/internal/adapter/voice"
)

const defaultBaseURL = "https://api.twiliolike.example/2010-04-01"

type Config struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	BaseURL    string // overridable for tests
}

type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

// RenderTwiML turns an ordered instruction list into the XML document the
// provider expects the call-handling webhook to return.
func RenderTwiML(instructions []voice.Instruction) ([]byte, error) {
	doc := twimlResponse{}
	for _, in := range instructions {
		switch in.Kind {
		case voice.Speak:
			doc.Verbs = append(doc.Verbs, twimlVerb{XMLName: xml.Name{Local: "Say"}, CharData: in.Text})
		case voice.Gather:
			doc.Verbs = append(doc.Verbs, twimlVerb{
				XMLName:   xml.Name{Local: "Gather"},
				NumDigits: len(firstOrEmpty(in.GatherDigits)),
				Timeout:   in.GatherTimeout,
				CharData:  in.Text,
			})
		case voice.Hangup:
			doc.Verbs = append(doc.Verbs, twimlVerb{XMLName: xml.Name{Local: "Hangup"}})
		default:
			return nil, fmt.Errorf("twiliolike: unknown instruction kind %q", in.Kind)
		}
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("twiliolike: render twiml: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

func firstOrEmpty(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

type twimlResponse struct {
	XMLName xml.Name    `xml:"Response"`
	Verbs   []twimlVerb
}

type twimlVerb struct {
	XMLName   xml.Name
	NumDigits int    `xml:"numDigits,attr,omitempty"`
	Timeout   int    `xml:"timeout,attr,omitempty"`
	CharData  string `xml:",chardata"`
}

type callResponse struct {
	SID string `json:"sid"`
}

func (c *Client) PlaceCall(ctx context.Context, req voice.PlaceCallRequest) (voice.PlaceCallResult, error) {
	twiml, err := RenderTwiML(req.Instructions)
	if err != nil {
		return voice.PlaceCallResult{}, err
	}

	form := url.Values{}
	form.Set("To", req.PhoneE164)
	form.Set("From", c.cfg.FromNumber)
	form.Set("Twiml", string(twiml))
	if req.StatusCallbackURL != "" {
		form.Set("StatusCallback", req.StatusCallbackURL)
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", c.cfg.BaseURL, c.cfg.AccountSID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return voice.PlaceCallResult{}, fmt.Errorf("twiliolike: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return voice.PlaceCallResult{}, fmt.Errorf("twiliolike: place call request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return voice.PlaceCallResult{}, fmt.Errorf("twiliolike: place call rejected (status %d)", resp.StatusCode)
	}

	var decoded callResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return voice.PlaceCallResult{}, fmt.Errorf("twiliolike: decode place call response: %w", err)
	}
	return voice.PlaceCallResult{ProviderCallID: decoded.SID}, nil
}

func (c *Client) Hangup(ctx context.Context, providerCallID string) error {
	form := url.Values{}
	form.Set("Status", "completed")

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", c.cfg.BaseURL, c.cfg.AccountSID, providerCallID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("twiliolike: build hangup request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("twiliolike: hangup request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("twiliolike: hangup rejected (status %d)", resp.StatusCode)
	}
	return nil
}

var _ voice.Port = (*Client)(nil)
