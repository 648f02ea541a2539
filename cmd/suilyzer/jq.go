package main

import (
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
)

// compileJQ parses and compiles jq filters.
func compileJQ(filters []string) ([]*gojq.Code, error) {
	codes := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		codes[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return codes, nil
}

// toJQInput converts a Go value into the generic form gojq operates on.
func toJQInput(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// runJQ returns every output of code applied to input.
func runJQ(code *gojq.Code, input interface{}) ([]interface{}, error) {
	var outputs []interface{}
	iter := code.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			return outputs, nil
		}
		if err, isErr := v.(error); isErr {
			return nil, err
		}
		outputs = append(outputs, v)
	}
}

// matchesAll reports whether every filter yields a truthy first result.
func matchesAll(codes []*gojq.Code, input interface{}) bool {
	for _, code := range codes {
		iter := code.Run(input)
		v, ok := iter.Next()
		if !ok {
			return false
		}
		if _, isErr := v.(error); isErr {
			return false
		}
		if !isTruthy(v) {
			return false
		}
	}
	return true
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}
