package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RedrivePolicy is the SQS redrive policy attribute of a source queue.
type RedrivePolicy struct {
	DeadLetterTargetArn string `json:"deadLetterTargetArn"`
	MaxReceiveCount     int    `json:"maxReceiveCount"`
}

// String returns the policy in the JSON form SQS expects.
func (p RedrivePolicy) String() string {
	b, _ := json.Marshal(p)
	return string(b)
}

// ParseRedrivePolicy decodes the RedrivePolicy attribute. SQS has returned
// maxReceiveCount both as a number and as a string.
func ParseRedrivePolicy(s string) (RedrivePolicy, error) {
	var raw struct {
		DeadLetterTargetArn string          `json:"deadLetterTargetArn"`
		MaxReceiveCount     json.RawMessage `json:"maxReceiveCount"`
	}

	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return RedrivePolicy{}, fmt.Errorf("failed to decode redrive policy: %w", err)
	}

	count := string(bytes.Trim(raw.MaxReceiveCount, `"`))

	n, err := strconv.Atoi(count)
	if err != nil {
		return RedrivePolicy{}, fmt.Errorf("invalid maxReceiveCount %q in redrive policy", count)
	}

	return RedrivePolicy{DeadLetterTargetArn: raw.DeadLetterTargetArn, MaxReceiveCount: n}, nil
}
