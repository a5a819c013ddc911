package datastore

import (
	"context"
	"fmt"
	"math"
	"strconv"
)

// Model is the part of an entity definition the datastore needs.
type Model interface {
	// Name identifies the model; the default collection name.
	Name() string
	// PrimaryKeyName is the record field holding the primary key.
	PrimaryKeyName() string
}

// Instance is a serializable entity owned by the object-model layer.
type Instance interface {
	Model() Model
	ToObject(ctx context.Context) (map[string]any, error)
	PrimaryKey(ctx context.Context) (any, error)
}

// CollectionNamer maps a model to the collection that holds its records.
type CollectionNamer func(Model) string

// DefaultCollectionName uses the model's name as the collection name.
func DefaultCollectionName(m Model) string {
	return m.Name()
}

type simpleModel struct {
	name       string
	primaryKey string
}

// NewModel returns a Model with the given name and primary-key field.
// An empty primaryKey means "id".
func NewModel(name, primaryKey string) Model {
	if primaryKey == "" {
		primaryKey = "id"
	}
	return simpleModel{name: name, primaryKey: primaryKey}
}

func (m simpleModel) Name() string           { return m.name }
func (m simpleModel) PrimaryKeyName() string { return m.primaryKey }

type mapInstance struct {
	model Model
	data  map[string]any
}

// NewInstance wraps a plain record as an Instance of model. The primary key
// is read from the model's primary-key field.
func NewInstance(model Model, data map[string]any) Instance {
	return mapInstance{model: model, data: data}
}

func (i mapInstance) Model() Model { return i.model }

func (i mapInstance) ToObject(context.Context) (map[string]any, error) {
	out := make(map[string]any, len(i.data))
	for k, v := range i.data {
		out[k] = v
	}
	return out, nil
}

func (i mapInstance) PrimaryKey(context.Context) (any, error) {
	return i.data[i.model.PrimaryKeyName()], nil
}

// keyString renders a primary key as the string the backends index by.
// Whole numbers print without a fraction so 7 and 7.0 address one record.
func keyString(key any) (string, error) {
	switch k := key.(type) {
	case nil:
		return "", nil
	case string:
		return k, nil
	case int:
		return strconv.Itoa(k), nil
	case int8:
		return strconv.FormatInt(int64(k), 10), nil
	case int16:
		return strconv.FormatInt(int64(k), 10), nil
	case int32:
		return strconv.FormatInt(int64(k), 10), nil
	case int64:
		return strconv.FormatInt(k, 10), nil
	case uint:
		return strconv.FormatUint(uint64(k), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(k), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(k), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(k), 10), nil
	case uint64:
		return strconv.FormatUint(k, 10), nil
	case float32:
		return keyString(float64(k))
	case float64:
		if k == math.Trunc(k) && !math.IsInf(k, 0) {
			return strconv.FormatFloat(k, 'f', 0, 64), nil
		}
		return strconv.FormatFloat(k, 'f', -1, 64), nil
	case fmt.Stringer:
		return k.String(), nil
	}
	return "", fmt.Errorf("unsupported primary key type %T", key)
}
