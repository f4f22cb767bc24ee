// Package trigger describes the external events that start a pipeline.
// Delivery of those events is handled by the orchestration platform; the
// values here only carry the wiring metadata.
package trigger

import (
	"errors"
	"fmt"

	"github.com/siqueiraa/flycs/pkg/schema"
)

type Type string

const (
	TypePubSub          Type = "pubsub"
	TypeGCSObjectExist  Type = "gcs_object_exist"
	TypeGCSObjectChange Type = "gcs_object_change"
	TypeGCSPrefixWatch  Type = "gcs_watch_prefix"
	TypePipelines       Type = "pipelines"
)

var ErrUnknownType = errors.New("unknown trigger type")

// Trigger is implemented only by the variants of this package.
type Trigger interface {
	Type() Type
	Validate() error
	ToMap() map[string]any
	isTrigger()
}

// PubSub starts the pipeline on every message published to Topic.
type PubSub struct {
	Topic string
	// SubscriptionProject defaults to the operations project when empty.
	SubscriptionProject string
}

func (PubSub) Type() Type { return TypePubSub }
func (PubSub) isTrigger() {}

func (t PubSub) Validate() error {
	if t.Topic == "" {
		return schema.Missing("topic")
	}
	return nil
}

func (t PubSub) ToMap() map[string]any {
	var project any
	if t.SubscriptionProject != "" {
		project = t.SubscriptionProject
	}
	return map[string]any{
		"type":                 string(TypePubSub),
		"topic":                t.Topic,
		"subscription_project": project,
	}
}

// GCSObjectExist fires once the object exists in the bucket.
type GCSObjectExist struct {
	Bucket string
	Object string
}

func (GCSObjectExist) Type() Type { return TypeGCSObjectExist }
func (GCSObjectExist) isTrigger() {}

func (t GCSObjectExist) Validate() error { return validateObject(t.Bucket, t.Object) }

func (t GCSObjectExist) ToMap() map[string]any {
	return map[string]any{"type": string(TypeGCSObjectExist), "bucket": t.Bucket, "object": t.Object}
}

// GCSObjectChange fires whenever the object is updated.
type GCSObjectChange struct {
	Bucket string
	Object string
}

func (GCSObjectChange) Type() Type { return TypeGCSObjectChange }
func (GCSObjectChange) isTrigger() {}

func (t GCSObjectChange) Validate() error { return validateObject(t.Bucket, t.Object) }

func (t GCSObjectChange) ToMap() map[string]any {
	return map[string]any{"type": string(TypeGCSObjectChange), "bucket": t.Bucket, "object": t.Object}
}

// GCSPrefixWatch fires when objects appear or change under Prefix.
type GCSPrefixWatch struct {
	Bucket string
	Prefix string
}

func (GCSPrefixWatch) Type() Type { return TypeGCSPrefixWatch }
func (GCSPrefixWatch) isTrigger() {}

func (t GCSPrefixWatch) Validate() error {
	if t.Bucket == "" {
		return schema.Missing("bucket")
	}
	if t.Prefix == "" {
		return schema.Missing("prefix")
	}
	return nil
}

func (t GCSPrefixWatch) ToMap() map[string]any {
	return map[string]any{"type": string(TypeGCSPrefixWatch), "bucket": t.Bucket, "prefix": t.Prefix}
}

func validateObject(bucket, object string) error {
	if bucket == "" {
		return schema.Missing("bucket")
	}
	if object == "" {
		return schema.Missing("object")
	}
	return nil
}

// Reference identifies a pipeline by name and version.
type Reference struct {
	Name    string
	Version string
}

func (r Reference) String() string { return r.Name + "@" + r.Version }

func (r Reference) Validate() error {
	if r.Name == "" {
		return schema.Missing("name")
	}
	return schema.ValidateVersion("version", r.Version)
}

func (r Reference) ToMap() map[string]any {
	return map[string]any{"name": r.Name, "version": r.Version}
}

func ReferenceFromMap(m schema.Mapping) (Reference, error) {
	var (
		r   Reference
		err error
	)
	if r.Name, err = m.String("name"); err != nil {
		return r, err
	}
	if r.Version, err = m.String("version"); err != nil {
		return r, err
	}
	return r, r.Validate()
}

// ReferencesFromList decodes a list of {name, version} mappings.
func ReferencesFromList(field string, raw []any) ([]Reference, error) {
	out := make([]Reference, 0, len(raw))
	for i, v := range raw {
		m, ok := schema.AsMapping(v)
		if !ok {
			return nil, &schema.FieldError{
				Field:  fmt.Sprintf("%s[%d]", field, i),
				Reason: "expected mapping, got " + schema.TypeName(v),
				Err:    schema.ErrInvalidType,
			}
		}
		r, err := ReferenceFromMap(m)
		if err != nil {
			return nil, schema.Prefix(fmt.Sprintf("%s[%d]", field, i), err)
		}
		out = append(out, r)
	}
	return out, nil
}

func ReferencesToList(refs []Reference) []any {
	out := make([]any, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.ToMap())
	}
	return out
}

// PipelineDependency starts the pipeline once all parents completed.
type PipelineDependency struct {
	Parents []Reference
}

func (PipelineDependency) Type() Type { return TypePipelines }
func (PipelineDependency) isTrigger() {}

func (t PipelineDependency) Validate() error {
	if len(t.Parents) == 0 {
		return schema.Missing("parents")
	}
	for i, p := range t.Parents {
		if err := p.Validate(); err != nil {
			return schema.Prefix(fmt.Sprintf("parents[%d]", i), err)
		}
	}
	return nil
}

func (t PipelineDependency) ToMap() map[string]any {
	return map[string]any{"type": string(TypePipelines), "parents": ReferencesToList(t.Parents)}
}

// FromMap decodes and validates any trigger, dispatching on "type".
func FromMap(m schema.Mapping) (Trigger, error) {
	typ, err := m.String("type")
	if err != nil {
		return nil, err
	}

	var t Trigger
	switch Type(typ) {
	case TypePubSub:
		var p PubSub
		if p.Topic, err = m.String("topic"); err != nil {
			return nil, err
		}
		if p.SubscriptionProject, err = m.OptionalString("subscription_project"); err != nil {
			return nil, err
		}
		t = p
	case TypeGCSObjectExist:
		var g GCSObjectExist
		if g.Bucket, g.Object, err = bucketAnd(m, "object"); err != nil {
			return nil, err
		}
		t = g
	case TypeGCSObjectChange:
		var g GCSObjectChange
		if g.Bucket, g.Object, err = bucketAnd(m, "object"); err != nil {
			return nil, err
		}
		t = g
	case TypeGCSPrefixWatch:
		var g GCSPrefixWatch
		if g.Bucket, g.Prefix, err = bucketAnd(m, "prefix"); err != nil {
			return nil, err
		}
		t = g
	case TypePipelines:
		raw, err := m.List("parents")
		if err != nil {
			return nil, err
		}
		parents, err := ReferencesFromList("parents", raw)
		if err != nil {
			return nil, err
		}
		t = PipelineDependency{Parents: parents}
	default:
		return nil, schema.Wrapf(ErrUnknownType, "type", "unknown trigger type %q", typ)
	}
	return t, t.Validate()
}

func bucketAnd(m schema.Mapping, key string) (string, string, error) {
	bucket, err := m.String("bucket")
	if err != nil {
		return "", "", err
	}
	v, err := m.String(key)
	return bucket, v, err
}
