package queue

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

type JobType string

const (
	JobChatMessage    JobType = "chat_message"
	JobPresence       JobType = "presence"
	JobBroadcast      JobType = "broadcast"
	JobReconcileDebts JobType = "reconcile_debts"
	JobSweepOrphans   JobType = "sweep_orphans"
)

// Job is the envelope stored in the stream. Payload holds the JSON encoded
// job body.
type Job struct {
	ID         string  `mapstructure:"id"`
	Type       JobType `mapstructure:"type"`
	Payload    string  `mapstructure:"payload"`
	EnqueuedAt string  `mapstructure:"enqueued_at"`
}

func (j Job) Values() map[string]any {
	return map[string]any{
		"id":          j.ID,
		"type":        string(j.Type),
		"payload":     j.Payload,
		"enqueued_at": j.EnqueuedAt,
	}
}

// DecodeJob reads an envelope from raw stream values.
func DecodeJob(values map[string]any) (Job, error) {
	var job Job
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &job,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Job{}, err
	}
	if err := decoder.Decode(values); err != nil {
		return Job{}, err
	}
	if job.Type == "" {
		return Job{}, fmt.Errorf("job %q has no type", job.ID)
	}
	return job, nil
}

// Bind decodes the payload into out. An empty payload leaves out untouched.
func (j Job) Bind(out any) error {
	if j.Payload == "" {
		return nil
	}
	return json.Unmarshal([]byte(j.Payload), out)
}
