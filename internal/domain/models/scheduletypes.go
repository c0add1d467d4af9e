// internal/domain/models/scheduletypes.go
package models

import "strings"

// Stage is one of the two linked funnel phases a container belongs to.
type Stage string

const (
	StageMeeting Stage = "MEETING"
	StageDiksha  Stage = "DIKSHA"
)

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageMeeting, StageDiksha:
		return true
	}
	return false
}

// ParseStage accepts any casing ("meeting", "Diksha", ...).
func ParseStage(v string) (Stage, bool) {
	s := Stage(strings.ToUpper(strings.TrimSpace(v)))
	return s, s.Valid()
}

// Kind describes how many customers share a placement.
type Kind string

const (
	KindSingle Kind = "SINGLE"
	KindCouple Kind = "COUPLE"
	KindFamily Kind = "FAMILY"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindSingle, KindCouple, KindFamily:
		return true
	}
	return false
}

// ParseKind accepts any casing.
func ParseKind(v string) (Kind, bool) {
	k := Kind(strings.ToUpper(strings.TrimSpace(v)))
	return k, k.Valid()
}

// KindForSize derives the group kind from its member count:
// 1 → SINGLE, 2 → COUPLE, 3+ → FAMILY.
func KindForSize(n int) Kind {
	switch {
	case n >= 3:
		return KindFamily
	case n == 2:
		return KindCouple
	default:
		return KindSingle
	}
}

// AcceptsSize reports whether a group of n customers may be created with kind k.
func (k Kind) AcceptsSize(n int) bool {
	switch k {
	case KindSingle:
		return n == 1
	case KindCouple:
		return n == 2
	case KindFamily:
		return n >= 3
	}
	return false
}

// CardStatus is the funnel state of an assignment. QUALIFIED is terminal.
type CardStatus string

const (
	CardActive    CardStatus = "ACTIVE"
	CardQualified CardStatus = "QUALIFIED"
)

// RejectAction names the external destination a rejected meeting card is handed to.
type RejectAction string

const (
	RejectTrash       RejectAction = "TRASH"
	RejectPushPending RejectAction = "PUSH_PENDING"
	RejectApproveFor  RejectAction = "APPROVE_FOR"
)

// Valid reports whether a is a known reject action.
func (a RejectAction) Valid() bool {
	switch a {
	case RejectTrash, RejectPushPending, RejectApproveFor:
		return true
	}
	return false
}

// ParseRejectAction accepts any casing.
func ParseRejectAction(v string) (RejectAction, bool) {
	a := RejectAction(strings.ToUpper(strings.TrimSpace(v)))
	return a, a.Valid()
}

// HistoryEvent labels a history record.
type HistoryEvent string

const (
	HistoryConfirmed HistoryEvent = "CONFIRMED"
	HistoryRejected  HistoryEvent = "REJECTED"
)

// BypassSentinel is the wire alias clients may send in place of an occupy date
// to request an explicit "no reservation" placement.
const BypassSentinel = "BYPASS"
