package common

import "strings"

// TopicLevelSeparator is the level separator for topic patterns.
const TopicLevelSeparator = "/"

// MultiLevelWildcard matches any trailing suffix of levels, MQTT-style.
const MultiLevelWildcard = "#"

// SingleLevelWildcard matches exactly one topic level.
const SingleLevelWildcard = "+"

// TopicMatches reports whether pattern matches topic under MQTT-style
// wildcard rules: "#" alone matches anything, an exact string match
// matches, "#" matches any trailing suffix, and "+" matches exactly one
// level.
func TopicMatches(topic, pattern string) bool {
	if pattern == MultiLevelWildcard {
		return true
	}
	if pattern == topic {
		return true
	}

	topicLevels := strings.Split(topic, TopicLevelSeparator)
	patternLevels := strings.Split(pattern, TopicLevelSeparator)

	for i, pl := range patternLevels {
		if pl == MultiLevelWildcard {
			// "#" must be the last pattern level and matches any suffix,
			// including zero remaining levels.
			return i == len(patternLevels)-1
		}
		if i >= len(topicLevels) {
			return false
		}
		if pl == SingleLevelWildcard {
			continue
		}
		if pl != topicLevels[i] {
			return false
		}
	}

	return len(patternLevels) == len(topicLevels)
}

// AnyTopicMatches reports whether topic matches any of patterns.
func AnyTopicMatches(topic string, patterns []string) bool {
	for _, p := range patterns {
		if TopicMatches(topic, p) {
			return true
		}
	}
	return false
}

// JoinBaseTopic prepends base (the configured base topic prefix) to topic,
// skipping empty segments so a blank base prefix is a no-op.
func JoinBaseTopic(base, topic string) string {
	base = strings.Trim(base, TopicLevelSeparator)
	topic = strings.Trim(topic, TopicLevelSeparator)
	if base == "" {
		return topic
	}
	if topic == "" {
		return base
	}
	return base + TopicLevelSeparator + topic
}
