package services

import (
	"fmt"

	"github.com/KBesada24/log-analyzer-plugins/models"
	"github.com/KBesada24/log-analyzer-plugins/utils"
)

// CheckProcessResponse verifies a plugin's answer to req. A broken answer is
// reported as a protocol_violation fault.
func CheckProcessResponse(req *models.ProcessRequest, resp *models.ProcessResponse) error {
	if resp == nil {
		return violation("process returned no response")
	}
	if err := utils.ValidateStruct(resp); err != nil {
		return utils.NewFault(utils.FaultProtocolViolation, fmt.Sprintf("process response is invalid: %v", err), err)
	}
	if resp.Result.FindingCount != len(resp.Findings) {
		return violation("finding_count is %d but %d findings were returned", resp.Result.FindingCount, len(resp.Findings))
	}
	submitted := 0
	if req != nil {
		submitted = len(req.Entries)
	}
	if resp.Result.ProcessedCount > submitted {
		return violation("processed_count %d exceeds the %d submitted entries", resp.Result.ProcessedCount, submitted)
	}
	return nil
}

// CheckInfoResponse verifies a plugin's self-description
func CheckInfoResponse(resp *models.InfoResponse) error {
	if resp == nil {
		return violation("info returned no response")
	}
	if err := utils.ValidateStruct(resp); err != nil {
		return utils.NewFault(utils.FaultProtocolViolation, fmt.Sprintf("info response is invalid: %v", err), err)
	}
	return nil
}

// CheckHealthResponse verifies the status is one of healthy, degraded, unhealthy
func CheckHealthResponse(resp *models.HealthResponse) error {
	if resp == nil {
		return violation("health returned no response")
	}
	if err := utils.ValidateStruct(resp); err != nil {
		return utils.NewFault(utils.FaultProtocolViolation, fmt.Sprintf("health response is invalid: %v", err), err)
	}
	return nil
}

func violation(format string, args ...interface{}) error {
	return utils.NewFault(utils.FaultProtocolViolation, fmt.Sprintf(format, args...), nil)
}
