package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskConversationInbound = "conversation.inbound"

const TaskTransferResume = "transfer.resume"

type TransferResumePayload struct {
	TransferID string `json:"transferId"`
}

// NewConversationInboundTask wraps an already serialized inbound event.
func NewConversationInboundTask(payload []byte) *asynq.Task {
	return asynq.NewTask(TaskConversationInbound, payload)
}

func NewTransferResumeTask(payload TransferResumePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTransferResume, data), nil
}

func ParseTransferResumePayload(task *asynq.Task) (TransferResumePayload, error) {
	var payload TransferResumePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return TransferResumePayload{}, err
	}
	return payload, nil
}

func inboundTaskID(eventID string) string {
	return "inbound:" + eventID
}

func transferTaskID(transferID string) string {
	return "transfer:" + transferID
}
