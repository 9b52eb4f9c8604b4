// Copyright (C) 2025 The image-variant-worker Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package pubsub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sigysmund/function-image-upload-resize/internal/idgen"
	"github.com/sigysmund/function-image-upload-resize/internal/imageconv"
)

const (
	eventGridBlobCreated = "Microsoft.Storage.BlobCreated"
	eventGridValidation  = "Microsoft.EventGrid.SubscriptionValidationEvent"
)

// ParseResult is what a notification payload turned into.
type ParseResult struct {
	Notifications []imageconv.Notification

	// ValidationCode is set when the payload is an Event Grid subscription
	// validation handshake.
	ValidationCode string

	// Ignored counts events that were understood but are not object creations.
	Ignored int
}

// EventParser defines the interface for parsing different types of storage events
type EventParser interface {
	Parse(raw []byte) (ParseResult, error)
	GetEventType() string
}

// EventGridParser handles Azure Event Grid deliveries in either the Event
// Grid schema or the CloudEvents 1.0 schema.
type EventGridParser struct{}

func (p *EventGridParser) GetEventType() string {
	return "eventgrid"
}

type eventGridEvent struct {
	ID        string          `json:"id"`
	Subject   string          `json:"subject"`
	EventType string          `json:"eventType"`
	EventTime string          `json:"eventTime"`
	Type      string          `json:"type"`
	Time      string          `json:"time"`
	Data      json.RawMessage `json:"data"`
}

func (e eventGridEvent) kind() string {
	if e.EventType != "" {
		return e.EventType
	}
	return e.Type
}

func (e eventGridEvent) timestamp() time.Time {
	for _, s := range []string{e.EventTime, e.Time} {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (p *EventGridParser) Parse(raw []byte) (ParseResult, error) {
	var events []eventGridEvent
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return ParseResult{}, fmt.Errorf("%w: event grid: %v", imageconv.ErrMalformedEvent, err)
		}
	} else {
		var evt eventGridEvent
		if err := json.Unmarshal(trimmed, &evt); err != nil {
			return ParseResult{}, fmt.Errorf("%w: event grid: %v", imageconv.ErrMalformedEvent, err)
		}
		events = []eventGridEvent{evt}
	}

	var res ParseResult
	for _, evt := range events {
		switch evt.kind() {
		case eventGridValidation:
			var data struct {
				ValidationCode string `json:"validationCode"`
			}
			if err := json.Unmarshal(evt.Data, &data); err != nil || data.ValidationCode == "" {
				return ParseResult{}, fmt.Errorf("%w: subscription validation event without a code", imageconv.ErrMalformedEvent)
			}
			res.ValidationCode = data.ValidationCode
		case eventGridBlobCreated:
			var data struct {
				URL           string `json:"url"`
				ContentLength int64  `json:"contentLength"`
			}
			if len(evt.Data) > 0 {
				if err := json.Unmarshal(evt.Data, &data); err != nil {
					return ParseResult{}, fmt.Errorf("%w: blob created data: %v", imageconv.ErrMalformedEvent, err)
				}
			}
			res.Notifications = append(res.Notifications, imageconv.Notification{
				ID:            idOrNew(evt.ID),
				URL:           data.URL,
				Source:        p.GetEventType(),
				ContentLength: data.ContentLength,
				EventTime:     evt.timestamp(),
			})
		case "":
			return ParseResult{}, fmt.Errorf("%w: event grid event without a type", imageconv.ErrMalformedEvent)
		default:
			res.Ignored++
		}
	}
	return res, nil
}

// S3EventParser handles AWS S3 event notifications.
type S3EventParser struct{}

func (p *S3EventParser) GetEventType() string {
	return "s3"
}

func (p *S3EventParser) Parse(raw []byte) (ParseResult, error) {
	var evt struct {
		Event   string `json:"Event"`
		Records []struct {
			EventName string `json:"eventName"`
			EventTime string `json:"eventTime"`
			S3        struct {
				Bucket struct {
					Name string `json:"name"`
				} `json:"bucket"`
				Object struct {
					Key       string `json:"key"`
					Size      int64  `json:"size"`
					Sequencer string `json:"sequencer"`
				} `json:"object"`
			} `json:"s3"`
		} `json:"Records"`
	}

	if err := json.Unmarshal(raw, &evt); err != nil {
		return ParseResult{}, fmt.Errorf("%w: s3 event: %v", imageconv.ErrMalformedEvent, err)
	}
	if evt.Event == "s3:TestEvent" {
		return ParseResult{Ignored: 1}, nil
	}

	var res ParseResult
	for _, rec := range evt.Records {
		if rec.EventName != "" && !strings.HasPrefix(rec.EventName, "ObjectCreated:") {
			res.Ignored++
			continue
		}
		// Keys arrive form-encoded ("+" for space).
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			return ParseResult{}, fmt.Errorf("%w: s3 key %q: %v", imageconv.ErrMalformedEvent, rec.S3.Object.Key, err)
		}
		bucket := rec.S3.Bucket.Name

		id := ""
		if rec.S3.Object.Sequencer != "" {
			id = "s3:" + bucket + "/" + key + "@" + rec.S3.Object.Sequencer
		}
		t, _ := time.Parse(time.RFC3339Nano, rec.EventTime)
		res.Notifications = append(res.Notifications, imageconv.Notification{
			ID:            idOrNew(id),
			URL:           objectURL("s3", bucket, key),
			Source:        p.GetEventType(),
			ContentLength: rec.S3.Object.Size,
			EventTime:     t,
		})
	}
	return res, nil
}

// GCPStorageEventParser handles Cloud Storage object resources as delivered
// by Pub/Sub notifications with the JSON_API_V1 payload format.
type GCPStorageEventParser struct{}

func (p *GCPStorageEventParser) GetEventType() string {
	return "gcs"
}

func (p *GCPStorageEventParser) Parse(raw []byte) (ParseResult, error) {
	var evt struct {
		Kind        string `json:"kind"`
		ID          string `json:"id"`
		Name        string `json:"name"`
		Bucket      string `json:"bucket"`
		Size        string `json:"size"`
		TimeCreated string `json:"timeCreated"`
	}

	if err := json.Unmarshal(raw, &evt); err != nil {
		return ParseResult{}, fmt.Errorf("%w: gcs event: %v", imageconv.ErrMalformedEvent, err)
	}
	if evt.Kind != "storage#object" {
		return ParseResult{}, fmt.Errorf("%w: unexpected GCS event kind %q", imageconv.ErrMalformedEvent, evt.Kind)
	}

	bucket := evt.Bucket
	if bucket == "" {
		bucket, _, _ = strings.Cut(evt.ID, "/")
	}
	size, _ := strconv.ParseInt(evt.Size, 10, 64)
	t, _ := time.Parse(time.RFC3339Nano, evt.TimeCreated)

	return ParseResult{Notifications: []imageconv.Notification{{
		ID:            idOrNew(evt.ID),
		URL:           objectURL("gs", bucket, evt.Name),
		Source:        p.GetEventType(),
		ContentLength: size,
		EventTime:     t,
	}}}, nil
}

// snsEnvelope is how S3 events look after fan-out through an SNS topic.
type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

type EventParserFactory struct{}

func (f *EventParserFactory) NewParser(raw []byte) (EventParser, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", imageconv.ErrMalformedEvent)
	}
	if trimmed[0] == '[' {
		return &EventGridParser{}, nil
	}

	var shape struct {
		Kind        string            `json:"kind"`
		Records     []json.RawMessage `json:"Records"`
		Event       string            `json:"Event"`
		EventType   string            `json:"eventType"`
		SpecVersion string            `json:"specversion"`
	}
	if err := json.Unmarshal(trimmed, &shape); err != nil {
		return nil, fmt.Errorf("%w: %v", imageconv.ErrMalformedEvent, err)
	}

	switch {
	case shape.Kind == "storage#object":
		return &GCPStorageEventParser{}, nil
	case len(shape.Records) > 0, shape.Event == "s3:TestEvent":
		return &S3EventParser{}, nil
	case shape.EventType != "", shape.SpecVersion != "":
		return &EventGridParser{}, nil
	}
	return nil, fmt.Errorf("%w: unable to determine event type from content", imageconv.ErrMalformedEvent)
}

// ParseNotifications detects the payload format and parses it. Any error
// wraps imageconv.ErrMalformedEvent.
func ParseNotifications(raw []byte) (ParseResult, error) {
	var env snsEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Type == "Notification" && env.Message != "" {
		raw = []byte(env.Message)
	}

	factory := &EventParserFactory{}
	parser, err := factory.NewParser(raw)
	if err != nil {
		return ParseResult{}, err
	}
	return parser.Parse(raw)
}

// NotificationForURL builds a notification for an object URL supplied
// directly, as the convert command does.
func NotificationForURL(raw string) imageconv.Notification {
	return imageconv.Notification{
		ID:        idgen.NextNotificationID(),
		URL:       strings.TrimSpace(raw),
		Source:    "url",
		EventTime: time.Now().UTC(),
	}
}

func objectURL(scheme, bucket, key string) string {
	if bucket == "" || key == "" {
		return ""
	}
	u := url.URL{Scheme: scheme, Host: bucket, Path: "/" + key}
	return u.String()
}

func idOrNew(id string) string {
	if id != "" {
		return id
	}
	return idgen.NextNotificationID()
}
