// Package registry knows every outbox event kind: where it is published
// and how each payload version decodes.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/rafflepot-backend/pkg/config"
	"github.com/angelmondragon/rafflepot-backend/pkg/db/models"
	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
	"github.com/angelmondragon/rafflepot-backend/pkg/outbox"
	"github.com/angelmondragon/rafflepot-backend/pkg/outbox/payloads"
)

// ErrPermanent marks failures that no amount of retrying will fix.
var ErrPermanent = errors.New("permanent")

// Permanent wraps err with ErrPermanent.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

type decodeFunc func(json.RawMessage) (any, error)

type kind struct {
	aggregate enums.OutboxAggregateType
	topic     string
	versions  map[int]decodeFunc
}

// Catalog maps event types to their aggregate, topic and payload versions.
// It is built once at startup and read-only afterwards.
type Catalog struct {
	kinds map[enums.OutboxEventType]*kind
}

// NewCatalog registers the events this system emits.
func NewCatalog(cfg config.PubSubConfig) (*Catalog, error) {
	drawTopic := strings.TrimSpace(cfg.DrawTopic)
	if drawTopic == "" {
		return nil, errors.New("draw topic is required")
	}
	c := &Catalog{kinds: make(map[enums.OutboxEventType]*kind)}
	c.kinds[enums.EventRaffleDrawn] = &kind{
		aggregate: enums.AggregateRaffle,
		topic:     drawTopic,
		versions:  make(map[int]decodeFunc),
	}
	if err := Version[payloads.RaffleDrawnEvent](c, enums.EventRaffleDrawn, 1); err != nil {
		return nil, err
	}
	return c, nil
}

// Version registers T as the payload schema of event at version.
func Version[T any](c *Catalog, event enums.OutboxEventType, version int) error {
	k, ok := c.kinds[event]
	if !ok {
		return fmt.Errorf("event %s is not in the catalog", event)
	}
	if _, dup := k.versions[version]; dup {
		return fmt.Errorf("%s v%d registered twice", event, version)
	}
	k.versions[version] = func(raw json.RawMessage) (any, error) {
		var payload T
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, err
		}
		return &payload, nil
	}
	return nil
}

// Resolved is a decoded event ready to publish or consume.
type Resolved struct {
	Type     enums.OutboxEventType
	Topic    string
	Envelope outbox.PayloadEnvelope
	Payload  any
}

// PayloadAs returns the payload as *T, or false if it is something else.
func PayloadAs[T any](r *Resolved) (*T, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.Payload.(*T)
	return p, ok
}

// Resolve checks an outbox row against the catalog and decodes its payload.
// Every error it returns is permanent.
func (c *Catalog) Resolve(row models.OutboxEvent) (*Resolved, error) {
	k, ok := c.kinds[row.EventType]
	if !ok {
		return nil, Permanent(fmt.Errorf("unsupported event type %q", row.EventType))
	}
	if k.aggregate != row.AggregateType {
		return nil, Permanent(fmt.Errorf("%s belongs to %s aggregates, row has %q", row.EventType, k.aggregate, row.AggregateType))
	}
	if row.AggregateID == uuid.Nil {
		return nil, Permanent(errors.New("missing aggregate_id"))
	}
	return c.decode(row.EventType, k, row.Payload)
}

// Decode parses a published message body of the given event type.
// Every error it returns is permanent.
func (c *Catalog) Decode(event enums.OutboxEventType, raw []byte) (*Resolved, error) {
	k, ok := c.kinds[event]
	if !ok {
		return nil, Permanent(fmt.Errorf("unsupported event type %q", event))
	}
	return c.decode(event, k, raw)
}

func (c *Catalog) decode(event enums.OutboxEventType, k *kind, raw []byte) (*Resolved, error) {
	env, err := outbox.ParseEnvelope(raw)
	if err != nil {
		return nil, Permanent(err)
	}
	decode, ok := k.versions[env.Version]
	if !ok {
		return nil, Permanent(fmt.Errorf("no decoder for %s v%d", event, env.Version))
	}
	payload, err := decode(env.Data)
	if err != nil {
		return nil, Permanent(fmt.Errorf("decode %s v%d: %w", event, env.Version, err))
	}
	return &Resolved{Type: event, Topic: k.topic, Envelope: env, Payload: payload}, nil
}

// Topics lists each distinct destination topic, sorted.
func (c *Catalog) Topics() []string {
	seen := make(map[string]struct{}, len(c.kinds))
	topics := make([]string, 0, len(c.kinds))
	for _, k := range c.kinds {
		if _, dup := seen[k.topic]; dup {
			continue
		}
		seen[k.topic] = struct{}{}
		topics = append(topics, k.topic)
	}
	sort.Strings(topics)
	return topics
}
