package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/calderasec/lurelab/pkg/queue"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	TypeCampaignDispatch = "campaign:dispatch"
	TypeReportGenerate   = "report:generate"
)

// CampaignDispatchPayload triggers a scheduled campaign send.
type CampaignDispatchPayload struct {
	CampaignID     uuid.UUID `json:"campaign_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
}

// NewCampaignDispatchTask builds the dispatch task, delayed until the
// campaign's scheduled send time.
func NewCampaignDispatchTask(payload CampaignDispatchPayload, at time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}
	return asynq.NewTask(TypeCampaignDispatch, data,
		asynq.Queue(queue.QueueCritical),
		asynq.ProcessAt(at),
	), nil
}

// ReportGeneratePayload renders a compliance report in the background.
type ReportGeneratePayload struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	RequestedByID  uuid.UUID `json:"requested_by_id"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
}

func NewReportGenerateTask(payload ReportGeneratePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}
	return asynq.NewTask(TypeReportGenerate, data, asynq.Queue(queue.QueueLow)), nil
}
