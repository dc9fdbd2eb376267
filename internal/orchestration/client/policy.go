package client

import "fmt"

// ApprovalPolicy controls how much autonomy the agent gets.
type ApprovalPolicy string

const (
	// PolicySuggest asks before every edit or command.
	PolicySuggest ApprovalPolicy = "suggest"
	// PolicyAutoEdit applies edits automatically but asks before commands.
	PolicyAutoEdit ApprovalPolicy = "auto-edit"
	// PolicyFullAuto never asks.
	PolicyFullAuto ApprovalPolicy = "full-auto"
	// PolicyApprovePlan asks the user to approve the agent's plan before
	// it starts working.
	PolicyApprovePlan ApprovalPolicy = "approve-plan"
)

// ApprovalPolicies lists every accepted policy.
var ApprovalPolicies = []ApprovalPolicy{PolicySuggest, PolicyAutoEdit, PolicyFullAuto, PolicyApprovePlan}

// ParseApprovalPolicy converts s to an ApprovalPolicy. An empty string
// yields PolicyFullAuto.
func ParseApprovalPolicy(s string) (ApprovalPolicy, error) {
	if s == "" {
		return PolicyFullAuto, nil
	}
	for _, p := range ApprovalPolicies {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown approval policy %q (want suggest, auto-edit, full-auto or approve-plan)", s)
}
