// Package avro encodes records in the Confluent wire format, resolving
// schemas through a schema registry.
package avro

import (
	"encoding/binary"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/hamba/avro/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/riferrei/srclient"
	"golang.org/x/sync/singleflight"
)

// Constants for Confluent wire format
const (
	confluentWireFormatHeaderSize = 5 // Magic byte (1) + Schema ID (4)
	magicByte                     = 0
)

// canonicalJSON sorts map keys so normalized schemas compare byte for byte.
var canonicalJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Registry is the part of a schema registry client the codec needs.
// *srclient.SchemaRegistryClient satisfies it.
type Registry interface {
	GetLatestSchema(subject string) (*srclient.Schema, error)
	GetSchema(schemaID int) (*srclient.Schema, error)
	CreateSchema(subject string, schema string, schemaType srclient.SchemaType, references ...srclient.Reference) (*srclient.Schema, error)
}

// schemaEntry holds the parsed schema and its schema ID.
type schemaEntry struct {
	schemaID int
	schema   avro.Schema
}

// Codec caches parsed schemas by subject and ID.
type Codec struct {
	client    Registry
	bySubject sync.Map // map[string]schemaEntry
	byID      sync.Map // map[int]avro.Schema
	group     singleflight.Group
}

func NewCodec(client Registry) *Codec {
	return &Codec{client: client}
}

// NewRegistryCodec builds a codec over a registry reachable at url.
func NewRegistryCodec(url string) *Codec {
	return NewCodec(srclient.CreateSchemaRegistryClient(url))
}

// schemaForSubject fetches and caches the latest schema for a subject.
func (c *Codec) schemaForSubject(subject string) (schemaEntry, error) {
	if v, ok := c.bySubject.Load(subject); ok {
		return v.(schemaEntry), nil
	}
	val, err, _ := c.group.Do(subject, func() (any, error) {
		meta, err := c.client.GetLatestSchema(subject)
		if err != nil {
			return nil, fmt.Errorf("fetch schema %s: %w", subject, err)
		}
		schema, err := avro.Parse(meta.Schema())
		if err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", subject, err)
		}
		se := schemaEntry{schemaID: meta.ID(), schema: schema}
		c.bySubject.Store(subject, se)
		c.byID.Store(meta.ID(), schema)
		return se, nil
	})
	if err != nil {
		return schemaEntry{}, err
	}
	return val.(schemaEntry), nil
}

// schemaForID fetches and caches a schema by its ID.
func (c *Codec) schemaForID(schemaID int) (avro.Schema, error) {
	if v, ok := c.byID.Load(schemaID); ok {
		return v.(avro.Schema), nil
	}
	val, err, _ := c.group.Do(fmt.Sprintf("id:%d", schemaID), func() (any, error) {
		meta, err := c.client.GetSchema(schemaID)
		if err != nil {
			return nil, fmt.Errorf("fetch schema ID %d: %w", schemaID, err)
		}
		schema, err := avro.Parse(meta.Schema())
		if err != nil {
			return nil, fmt.Errorf("parse schema ID %d: %w", schemaID, err)
		}
		c.byID.Store(schemaID, schema)
		return schema, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(avro.Schema), nil
}

// Register makes sure subject carries schemaJSON. An existing schema that
// matches after normalization is reused; one that differs is kept and a
// warning is logged rather than registering a new version.
func (c *Codec) Register(subject, schemaJSON string) (int, error) {
	if _, err := avro.Parse(schemaJSON); err != nil {
		return 0, fmt.Errorf("invalid schema for %s: %w", subject, err)
	}

	existing, err := c.client.GetLatestSchema(subject)
	if err != nil {
		created, err := c.client.CreateSchema(subject, schemaJSON, srclient.Avro)
		if err != nil {
			return 0, fmt.Errorf("create schema %s: %w", subject, err)
		}
		log.Printf("[Avro] Registered schema %s with ID %d", subject, created.ID())
		return created.ID(), nil
	}

	same, err := sameSchema(existing.Schema(), schemaJSON)
	if err != nil {
		log.Printf("[Avro] Failed to compare schemas for %s: %v", subject, err)
	} else if !same {
		log.Printf("[Avro] Schema for %s exists but differs, using existing ID %d", subject, existing.ID())
	}
	return existing.ID(), nil
}

func sameSchema(a, b string) (bool, error) {
	na, err := normalizeSchemaJSON(a)
	if err != nil {
		return a == b, err
	}
	nb, err := normalizeSchemaJSON(b)
	if err != nil {
		return a == b, err
	}
	return na == nb, nil
}

// Encode encodes a native record into a Confluent-wire payload using the
// latest schema of subject.
func (c *Codec) Encode(subject string, native map[string]any) ([]byte, error) {
	se, err := c.schemaForSubject(subject)
	if err != nil {
		return nil, fmt.Errorf("get schema for %s: %w", subject, err)
	}
	data, err := avro.Marshal(se.schema, native)
	if err != nil {
		return nil, fmt.Errorf("marshal for %s: %w", subject, err)
	}
	if se.schemaID < 0 || se.schemaID > 0xFFFFFFFF {
		return nil, fmt.Errorf("schema ID %d out of uint32 range", se.schemaID)
	}
	out := make([]byte, confluentWireFormatHeaderSize+len(data))
	out[0] = magicByte
	binary.BigEndian.PutUint32(out[1:confluentWireFormatHeaderSize], uint32(se.schemaID))
	copy(out[confluentWireFormatHeaderSize:], data)
	return out, nil
}

// Decode decodes a Confluent-wire payload using the schema ID it carries.
func (c *Codec) Decode(payload []byte) (map[string]any, error) {
	if len(payload) < confluentWireFormatHeaderSize || payload[0] != magicByte {
		return nil, fmt.Errorf("invalid wire format: missing magic byte or too short")
	}
	schemaID := int(binary.BigEndian.Uint32(payload[1:confluentWireFormatHeaderSize]))
	schema, err := c.schemaForID(schemaID)
	if err != nil {
		return nil, fmt.Errorf("get schema for ID %d: %w", schemaID, err)
	}
	var out map[string]any
	if err := avro.Unmarshal(schema, payload[confluentWireFormatHeaderSize:], &out); err != nil {
		return nil, fmt.Errorf("unmarshal for ID %d: %w", schemaID, err)
	}
	return out, nil
}

// normalizeSchemaJSON re-marshals a schema with sorted keys, record fields
// ordered by name and union branches ordered by their text.
func normalizeSchemaJSON(schemaJSON string) (string, error) {
	var schema any
	if err := canonicalJSON.Unmarshal([]byte(schemaJSON), &schema); err != nil {
		return "", fmt.Errorf("failed to parse schema JSON: %w", err)
	}
	out, err := canonicalJSON.Marshal(normalize(schema))
	if err != nil {
		return "", fmt.Errorf("failed to marshal normalized schema: %w", err)
	}
	return string(out), nil
}

func normalize(schema any) any {
	switch s := schema.(type) {
	case map[string]any:
		out := make(map[string]any, len(s))
		for k, v := range s {
			out[k] = normalize(v)
		}
		if fields, ok := out["fields"].([]any); ok {
			sort.SliceStable(fields, func(i, j int) bool {
				return fieldName(fields[i]) < fieldName(fields[j])
			})
		}
		if union, ok := out["type"].([]any); ok {
			sort.SliceStable(union, func(i, j int) bool {
				return fmt.Sprint(union[i]) < fmt.Sprint(union[j])
			})
		}
		return out
	case []any:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = normalize(item)
		}
		return out
	default:
		return s
	}
}

func fieldName(field any) string {
	if m, ok := field.(map[string]any); ok {
		name, _ := m["name"].(string)
		return name
	}
	return ""
}
