package models

import (
	"math"
	"time"
)

const (
	StatusGuilty    = "Guilty"
	StatusNotGuilty = "Not Guilty"
	StatusPending   = "Pending"
)

// Case — жалоба на предполагаемого мошенника вместе с итогами голосования.
// Поля счётчиков меняет только журнал голосов.
type Case struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name,omitempty"`
	Email       string     `json:"email,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Company     string     `json:"company,omitempty"`
	Actions     string     `json:"actions"`
	Description string     `json:"description"`
	ReportedBy  string     `json:"reportedBy"`
	SourceIP    string     `json:"-"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastVotedAt *time.Time `json:"lastVotedAt,omitempty"`

	VerdictScore   int `json:"verdictScore"`
	TotalVotes     int `json:"totalVotes"`
	GuiltyVotes    int `json:"guiltyVotes"`
	NotGuiltyVotes int `json:"notGuiltyVotes"`
}

type VerdictSummary struct {
	Status         string  `json:"status"`
	Score          int     `json:"score"`
	TotalVotes     int     `json:"totalVotes"`
	GuiltyVotes    int     `json:"guiltyVotes"`
	NotGuiltyVotes int     `json:"notGuiltyVotes"`
	Confidence     float64 `json:"confidence"`
}

func (c *Case) VerdictStatus() string {
	switch {
	case c.VerdictScore > 0:
		return StatusGuilty
	case c.VerdictScore < 0:
		return StatusNotGuilty
	default:
		return StatusPending
	}
}

// Confidence — доля большинства в процентах, один знак после запятой.
func (c *Case) Confidence() float64 {
	if c.TotalVotes == 0 {
		return 0
	}
	majority := c.GuiltyVotes
	if c.NotGuiltyVotes > majority {
		majority = c.NotGuiltyVotes
	}
	return math.Round(float64(majority)/float64(c.TotalVotes)*1000) / 10
}

func (c *Case) Summary() VerdictSummary {
	return VerdictSummary{
		Status:         c.VerdictStatus(),
		Score:          c.VerdictScore,
		TotalVotes:     c.TotalVotes,
		GuiltyVotes:    c.GuiltyVotes,
		NotGuiltyVotes: c.NotGuiltyVotes,
		Confidence:     c.Confidence(),
	}
}

// ApplyVote увеличивает нужный счётчик и пересчитывает score/total.
func (c *Case) ApplyVote(choice VoteChoice, at time.Time) {
	switch choice {
	case VoteGuilty:
		c.GuiltyVotes++
	case VoteNotGuilty:
		c.NotGuiltyVotes++
	default:
		return
	}
	c.TotalVotes = c.GuiltyVotes + c.NotGuiltyVotes
	c.VerdictScore = c.GuiltyVotes - c.NotGuiltyVotes
	t := at
	c.LastVotedAt = &t
}

func (c *Case) ResetVotes() {
	c.VerdictScore = 0
	c.TotalVotes = 0
	c.GuiltyVotes = 0
	c.NotGuiltyVotes = 0
	c.LastVotedAt = nil
}

// TallyConsistent: score и total сходятся со счётчиками guilty/not_guilty.
func (c *Case) TallyConsistent() bool {
	return c.VerdictScore == c.GuiltyVotes-c.NotGuiltyVotes &&
		c.TotalVotes == c.GuiltyVotes+c.NotGuiltyVotes
}

type CaseFilter string

const (
	FilterName    CaseFilter = "name"
	FilterEmail   CaseFilter = "email"
	FilterPhone   CaseFilter = "phone"
	FilterCompany CaseFilter = "company"
	FilterAction  CaseFilter = "action"
	FilterAll     CaseFilter = "all"
)

func ParseCaseFilter(s string) (CaseFilter, bool) {
	switch f := CaseFilter(s); f {
	case FilterName, FilterEmail, FilterPhone, FilterCompany, FilterAction, FilterAll:
		return f, true
	}
	return "", false
}

func SupportedFilters() []string {
	return []string{"name", "email", "phone", "company", "action", "all"}
}
