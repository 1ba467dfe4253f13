package events

import (
	"encoding/json"
	"fmt"
)

// TypeData is the payload of an event, one variant per EventType.
type TypeData interface {
	eventType() EventType
}

type ViewData struct {
	PageTitle        string `json:"pageTitle"`
	PageURL          string `json:"pageUrl"`
	ViewportSize     string `json:"viewportSize"`
	ScreenResolution string `json:"screenResolution"`
}

type ClickData struct {
	ElementType    string  `json:"elementType"`
	ClickedContent string  `json:"clickedContent,omitempty"`
	PageX          float64 `json:"pageX"`
	PageY          float64 `json:"pageY"`
	LinkTarget     string  `json:"linkTarget,omitempty"`
	ImageSrc       string  `json:"imageSrc,omitempty"`
}

// InputData describes a form field interaction. Field values are never
// collected, only their length.
type InputData struct {
	ElementType string `json:"elementType,omitempty"`
	FieldName   string `json:"fieldName,omitempty"`
	InputType   string `json:"inputType,omitempty"`
	ValueLength int    `json:"valueLength,omitempty"`
}

type SubmitData struct {
	FormID         string         `json:"formId"`
	FormAction     string         `json:"formAction"`
	FormMethod     string         `json:"formMethod"`
	FormFieldCount int            `json:"formFieldCount"`
	FormData       map[string]any `json:"formData,omitempty"`
}

type HeartbeatData struct{}

type ExitData struct{}

// RawData holds the payload of an event type this service does not know,
// copied verbatim.
type RawData struct {
	Type    EventType
	Payload json.RawMessage
}

func (ViewData) eventType() EventType      { return TypeView }
func (ClickData) eventType() EventType     { return TypeClick }
func (InputData) eventType() EventType     { return TypeInput }
func (SubmitData) eventType() EventType    { return TypeSubmit }
func (HeartbeatData) eventType() EventType { return TypeHeartbeat }
func (ExitData) eventType() EventType      { return TypePageExit }
func (r RawData) eventType() EventType     { return r.Type }

// MarshalJSON writes the payload unchanged.
func (r RawData) MarshalJSON() ([]byte, error) {
	if len(r.Payload) == 0 {
		return []byte("null"), nil
	}
	return r.Payload, nil
}

// DecodeTypeData decodes payload into the variant for t. An empty payload
// yields the zero variant.
func DecodeTypeData(t EventType, payload json.RawMessage) (TypeData, error) {
	empty := len(payload) == 0 || string(payload) == "null"

	var target TypeData
	switch t {
	case TypeView:
		target = &ViewData{}
	case TypeClick:
		target = &ClickData{}
	case TypeInput:
		target = &InputData{}
	case TypeSubmit:
		target = &SubmitData{}
	case TypeHeartbeat:
		return HeartbeatData{}, nil
	case TypePageExit:
		return ExitData{}, nil
	default:
		return RawData{Type: t, Payload: append(json.RawMessage(nil), payload...)}, nil
	}

	if !empty {
		if err := json.Unmarshal(payload, target); err != nil {
			return nil, fmt.Errorf("decode %s typeData: %w", t, err)
		}
	}

	switch v := target.(type) {
	case *ViewData:
		return *v, nil
	case *ClickData:
		return *v, nil
	case *InputData:
		return *v, nil
	case *SubmitData:
		return *v, nil
	}
	return target, nil
}
