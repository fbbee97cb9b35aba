package notify

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"git.0xdad.com/tblyler/meditime/schedule"
)

const (
	// TypeReminder payloads name a single medication
	TypeReminder = "medication-reminder"
	// TypeReminderGroup payloads list every medication due at a time
	TypeReminderGroup = "medication-reminder-group"

	urlScheme = "meditime"
	urlHost   = "reminder"
	urlParam  = "payload"
)

var (
	// ErrInvalidPayload occurs when a delivered payload has an unknown shape
	ErrInvalidPayload = errors.New("invalid notification payload")
)

// PayloadMedication is a medication listed in a group payload
type PayloadMedication struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Dosage string `json:"dosage,omitempty"`
}

// Payload carried by a notification back to the app when it is tapped
type Payload struct {
	Type         string              `json:"type"`
	MedicationID string              `json:"medicationId,omitempty"`
	Time         string              `json:"time,omitempty"`
	Medications  []PayloadMedication `json:"medications,omitempty"`
}

// Validate the payload shape for its type
func (p Payload) Validate() error {
	if p.Time != "" {
		if _, err := schedule.ParseTimeOfDay(p.Time); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}

	switch p.Type {
	case TypeReminder:
		if p.MedicationID == "" {
			return fmt.Errorf("%s payload without a medication id: %w", p.Type, ErrInvalidPayload)
		}

	case TypeReminderGroup:
		if len(p.Medications) == 0 {
			return fmt.Errorf("%s payload without medications: %w", p.Type, ErrInvalidPayload)
		}

		for _, medication := range p.Medications {
			if medication.ID == "" {
				return fmt.Errorf("%s payload lists a medication without an id: %w", p.Type, ErrInvalidPayload)
			}
		}

	default:
		return fmt.Errorf("unknown payload type %q: %w", p.Type, ErrInvalidPayload)
	}

	return nil
}

// DecodePayload from its JSON form
func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	err := json.Unmarshal(data, &p)
	if err != nil {
		return Payload{}, fmt.Errorf("failed to unmarshal payload: %w: %v", ErrInvalidPayload, err)
	}

	return p, p.Validate()
}

// EncodeURL packs the payload into a meditime://reminder link
func EncodeURL(p Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to JSON marshal payload: %w", err)
	}

	u := url.URL{
		Scheme:   urlScheme,
		Host:     urlHost,
		RawQuery: url.Values{urlParam: {base64.RawURLEncoding.EncodeToString(data)}}.Encode(),
	}

	return u.String(), nil
}

// DecodeURL unpacks a payload packed by EncodeURL
func DecodeURL(raw string) (Payload, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Payload{}, fmt.Errorf("failed to parse payload url: %w: %v", ErrInvalidPayload, err)
	}

	if u.Scheme != urlScheme || u.Host != urlHost {
		return Payload{}, fmt.Errorf("url %q is not a reminder link: %w", raw, ErrInvalidPayload)
	}

	data, err := base64.RawURLEncoding.DecodeString(u.Query().Get(urlParam))
	if err != nil {
		return Payload{}, fmt.Errorf("failed to decode payload: %w: %v", ErrInvalidPayload, err)
	}

	return DecodePayload(data)
}

// Intent tells the app what to show after a notification is tapped
type Intent struct {
	Time          string
	MedicationIDs []string
	Group         bool
}

// IntentFor decodes the shape of a tapped payload
func IntentFor(p Payload) (Intent, error) {
	err := p.Validate()
	if err != nil {
		return Intent{}, err
	}

	if p.Type == TypeReminder {
		return Intent{Time: p.Time, MedicationIDs: []string{p.MedicationID}}, nil
	}

	ids := make([]string, len(p.Medications))
	for i, medication := range p.Medications {
		ids[i] = medication.ID
	}

	return Intent{Time: p.Time, MedicationIDs: ids, Group: true}, nil
}
