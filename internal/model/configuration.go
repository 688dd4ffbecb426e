// Package model defines the configuration entity and its
// normalization and conversion rules.
package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bhdrerdem/config-server/internal/apperr"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Configuration is the canonical in-memory representation of a
// configuration parameter. Version is incremented by exactly one on
// every accepted update and drives optimistic concurrency.
type Configuration struct {
	ID           string    `json:"id"`
	ParameterKey string    `json:"parameterKey"`
	Value        string    `json:"value"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Version      int64     `json:"version"`
}

// Input carries the fields a client supplies on create.
type Input struct {
	ParameterKey string `json:"parameterKey"`
	Value        string `json:"value"`
	Description  string `json:"description"`
}

// Update carries the fields a client supplies on update. Nil pointers
// mean "keep the current value"; supplied values are normalized and
// must not be empty.
type Update struct {
	ParameterKey *string `json:"parameterKey"`
	Value        *string `json:"value"`
	Description  *string `json:"description"`
	Version      *int64  `json:"version"`
}

// NewConfiguration normalizes and validates client input into a fresh
// entity with version 1. The ID is assigned later by the durable store.
func NewConfiguration(in Input) (*Configuration, error) {
	key, err := normalizeKey(in.ParameterKey)
	if err != nil {
		return nil, err
	}

	value, err := normalizeValue(in.Value)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Configuration{
		ParameterKey: key,
		Value:        value,
		Description:  in.Description,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}, nil
}

// Apply merges an update's supplied fields into the entity, with the
// same normalization as create. Omitted fields are left untouched.
// Version and UpdatedAt are managed by the caller.
func (c *Configuration) Apply(in Update) error {
	if in.ParameterKey != nil {
		key, err := normalizeKey(*in.ParameterKey)
		if err != nil {
			return err
		}
		c.ParameterKey = key
	}

	if in.Value != nil {
		value, err := normalizeValue(*in.Value)
		if err != nil {
			return err
		}
		c.Value = value
	}

	if in.Description != nil {
		c.Description = *in.Description
	}

	return nil
}

// Fields returns the record shape persisted to the durable store. The
// ID is the store's concern and is not included.
func (c *Configuration) Fields() map[string]any {
	return map[string]any{
		"parameterKey": c.ParameterKey,
		"value":        c.Value,
		"description":  c.Description,
		"createdAt":    c.CreatedAt,
		"updatedAt":    c.UpdatedAt,
		"version":      c.Version,
	}
}

// FromRecord reconstructs an entity from a stored record. Missing
// timestamps default to now and a missing version defaults to 1, so
// rows written by older paths stay readable.
func FromRecord(data map[string]any, id string) (*Configuration, error) {
	key, ok := asString(data["parameterKey"])
	if !ok {
		return nil, fmt.Errorf("record %s: parameterKey is not a string", id)
	}

	value, ok := asString(data["value"])
	if !ok {
		return nil, fmt.Errorf("record %s: value is not a string", id)
	}

	description, _ := asString(data["description"])

	return &Configuration{
		ID:           id,
		ParameterKey: key,
		Value:        value,
		Description:  description,
		CreatedAt:    coerceTime(data["createdAt"]),
		UpdatedAt:    coerceTime(data["updatedAt"]),
		Version:      coerceVersion(data["version"]),
	}, nil
}

func normalizeKey(raw string) (string, error) {
	key := strings.TrimSpace(raw)
	if key == "" {
		return "", apperr.Validation("field 'parameterKey' cannot be empty")
	}
	return whitespaceRun.ReplaceAllString(key, "_"), nil
}

func normalizeValue(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", apperr.Validation("field 'value' cannot be empty")
	}
	return value, nil
}

func asString(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// coerceTime accepts the store's native timestamp or an ISO string.
func coerceTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed
		}
	}
	return time.Now().UTC()
}

func coerceVersion(v any) int64 {
	switch n := v.(type) {
	case int64:
		if n > 0 {
			return n
		}
	case int:
		if n > 0 {
			return int64(n)
		}
	case float64:
		if n > 0 {
			return int64(n)
		}
	}
	return 1
}
