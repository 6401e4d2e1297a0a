// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import "strings"

const sharedPrefix = "$share/"

// IsTopicFilterMatch checks if a topic name matches a topic filter.
func IsTopicFilterMatch(topicFilter, topicName string) bool {
	// Handle shared subscriptions.
	if tf, ok := strings.CutPrefix(topicFilter, sharedPrefix); ok {
		idx := strings.Index(tf, "/")
		if idx == -1 {
			return false
		}
		topicFilter = tf[idx+1:]
	}

	// Wildcards never match topics starting with '$'.
	if strings.HasPrefix(topicName, "$") &&
		(strings.HasPrefix(topicFilter, "+") ||
			strings.HasPrefix(topicFilter, "#")) {
		return false
	}

	filters := strings.Split(topicFilter, "/")
	names := strings.Split(topicName, "/")

	for i, filter := range filters {
		if filter == "#" {
			// Multi-level wildcard must be at the end.
			return i == len(filters)-1
		}
		if filter == "+" {
			if i >= len(names) {
				return false
			}
			continue
		}
		if i >= len(names) || filter != names[i] {
			return false
		}
	}

	return len(filters) == len(names)
}

// ValidateTopicFilter checks a subscription filter's wildcard placement.
func ValidateTopicFilter(filter string) error {
	if filter == "" {
		return &InvalidArgumentError{message: "empty topic filter"}
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#" && i != len(levels)-1,
			level != "#" && strings.Contains(level, "#"),
			level != "+" && strings.Contains(level, "+"):
			return &InvalidArgumentError{
				message: "invalid wildcard in topic filter " + filter,
			}
		}
	}
	return nil
}

// ValidateTopicName checks that a topic is usable for publishing.
func ValidateTopicName(topic string) error {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return &InvalidArgumentError{
			message: "invalid publish topic " + topic,
		}
	}
	return nil
}
