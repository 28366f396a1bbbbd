package models

import (
	"strings"
	"time"
)

type VoteChoice string

const (
	VoteGuilty    VoteChoice = "guilty"
	VoteNotGuilty VoteChoice = "not_guilty"
)

// ParseVoteChoice принимает "guilty" / "not_guilty" (регистр и пробелы не важны).
func ParseVoteChoice(s string) (VoteChoice, bool) {
	switch VoteChoice(strings.ToLower(strings.TrimSpace(s))) {
	case VoteGuilty:
		return VoteGuilty, true
	case VoteNotGuilty:
		return VoteNotGuilty, true
	}
	return "", false
}

const (
	identityEmailPrefix = "email:"
	identityIPPrefix    = "ip:"
)

// VoterIdentity — "email:<addr>" или "ip:<addr>".
type VoterIdentity string

func EmailIdentity(email string) VoterIdentity {
	return VoterIdentity(identityEmailPrefix + strings.ToLower(strings.TrimSpace(email)))
}

func IPIdentity(ip string) VoterIdentity {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		ip = "unknown"
	}
	return VoterIdentity(identityIPPrefix + ip)
}

func (v VoterIdentity) IsEmail() bool {
	return strings.HasPrefix(string(v), identityEmailPrefix)
}

// Method — "email" или "ip", для ответа клиенту.
func (v VoterIdentity) Method() string {
	if v.IsEmail() {
		return "email"
	}
	return "ip"
}

func (v VoterIdentity) String() string { return string(v) }

type Vote struct {
	ID            int64         `json:"id"`
	VoterIdentity VoterIdentity `json:"-"`
	CaseID        int64         `json:"caseId"`
	Choice        VoteChoice    `json:"vote"`
	CastAt        time.Time     `json:"castAt"`
}
