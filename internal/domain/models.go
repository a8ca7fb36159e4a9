package domain

import (
	"time"
)

type PresenceState int

const (
	PresenceAbsent PresenceState = iota
	PresenceInGame
)

func (p PresenceState) String() string {
	if p == PresenceInGame {
		return "in_game"
	}
	return "absent"
}

type Transition int

const (
	TransitionNone Transition = iota
	TransitionEnteredGame
	TransitionLeftGame
)

func (t Transition) String() string {
	switch t {
	case TransitionEnteredGame:
		return "entered_game"
	case TransitionLeftGame:
		return "left_game"
	default:
		return "none"
	}
}

type Participant struct {
	PUUID      string
	ChampionID int
	TeamID     int
}

type LiveGameSnapshot struct {
	GameID       int64
	StartedAt    time.Time
	QueueID      int
	Participants []Participant
}

// Participant returns the tracked player's entry, if present.
func (s *LiveGameSnapshot) Participant(puuid string) (Participant, bool) {
	if s == nil {
		return Participant{}, false
	}
	for _, p := range s.Participants {
		if p.PUUID == puuid {
			return p, true
		}
	}
	return Participant{}, false
}

type CompletedMatch struct {
	MatchID    string
	EndedAt    time.Time
	Duration   time.Duration
	Win        bool
	Kills      int
	Deaths     int
	Assists    int
	ChampionID int
	QueueID    int
}

// StartedAt is derived from the end time and duration.
func (m CompletedMatch) StartedAt() time.Time {
	return m.EndedAt.Add(-m.Duration)
}

type RankObservation struct {
	ID           string // nanoid
	Timestamp    time.Time
	QueueType    string // RANKED_SOLO_5x5, RANKED_FLEX_SR
	Tier         string // GOLD, MASTER, ...
	Division     string // I-IV, empty for apex tiers
	LeaguePoints int
	MatchID      string
}

type NotificationKind string

const (
	NotificationEntered     NotificationKind = "entered"
	NotificationCompleted   NotificationKind = "completed"
	NotificationUnavailable NotificationKind = "unavailable"
)

type Notification struct {
	Kind       NotificationKind
	MatchID    string
	Win        bool
	Kills      int
	Deaths     int
	Assists    int
	LPDelta    int
	HasLPDelta bool // false when no prior observation existed
	ChampionID int
	QueueType  string
	Snapshot   *LiveGameSnapshot // entered only
	CreatedAt  time.Time
}
